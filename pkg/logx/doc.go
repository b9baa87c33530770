// Package logx is looptask's logging layer over zerolog.
//
// Loggers handed out by a Service keep working across Service.Apply, so a
// config reload can change level and sinks without rebuilding components.
package logx
