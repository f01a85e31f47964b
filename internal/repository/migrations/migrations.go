// Package migrations 内置的数据库迁移脚本
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
