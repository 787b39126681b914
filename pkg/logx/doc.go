// Package logx is the bot's structured logging layer on top of zerolog.
//
// Console output is short and human readable, file output is JSON, and an
// optional Telegram sink forwards warnings to an operator chat under a rate
// limit.
package logx
