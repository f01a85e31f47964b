// Package metrics 聊天服务的 Prometheus 指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Exchanges 完成的对话轮次
	Exchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storebot_exchanges_total",
			Help: "Total number of completed chat exchanges",
		},
		[]string{"transport", "intent"},
	)

	// ExchangeDuration 单次对话处理耗时
	ExchangeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storebot_exchange_duration_seconds",
			Help:    "Duration of the classify, generate and persist pipeline",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"transport"},
	)

	// ExchangeFailures 失败的对话轮次
	ExchangeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storebot_exchange_failures_total",
			Help: "Total number of chat exchanges rejected or failed",
		},
		[]string{"transport", "kind"},
	)

	// LookupFailures 商品/订单查询失败（已降级为兜底回复）
	LookupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storebot_lookup_failures_total",
			Help: "Total number of product or order lookups that failed",
		},
		[]string{"collaborator"},
	)

	// SocketSessions 当前 WebSocket 连接数
	SocketSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storebot_socket_sessions",
			Help: "Number of live websocket sessions",
		},
	)

	// Contexts 当前会话上下文数量
	Contexts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storebot_contexts",
			Help: "Number of conversation contexts held by the context store",
		},
	)

	// ContextsEvicted 因空闲被清理的上下文
	ContextsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storebot_contexts_evicted_total",
			Help: "Total number of idle conversation contexts evicted",
		},
	)

	// HTTPRequests HTTP 请求数
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storebot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

// RecordExchange 记录一次成功的对话
func RecordExchange(transport, intent string, started time.Time) {
	Exchanges.WithLabelValues(transport, intent).Inc()
	ExchangeDuration.WithLabelValues(transport).Observe(time.Since(started).Seconds())
}

// RecordExchangeFailure 记录一次失败的对话
func RecordExchangeFailure(transport, kind string) {
	ExchangeFailures.WithLabelValues(transport, kind).Inc()
}

// RecordLookupFailure 记录一次查询失败
func RecordLookupFailure(collaborator string) {
	LookupFailures.WithLabelValues(collaborator).Inc()
}
