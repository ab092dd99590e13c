// Package logger — единый вывод логов ems-pacer с префиксом и учётом quiet/verbose.
package logger

import "log"

const prefix = "ems-pacer: "

// Quiet при true отключает информационные сообщения (Info); Error выводится всегда.
var Quiet bool

// Verbose при true включает отладочные сообщения (Debug): отброшенная обратная связь, смещения и т.п.
var Verbose bool

// Info выводит сообщение с префиксом, если Quiet == false.
func Info(format string, args ...interface{}) {
	if Quiet {
		return
	}
	log.Printf(prefix+format, args...)
}

// Debug выводит сообщение только при Verbose (Quiet его не отключает).
func Debug(format string, args ...interface{}) {
	if !Verbose {
		return
	}
	log.Printf(prefix+"debug: "+format, args...)
}

// Error выводит сообщение об ошибке с префиксом всегда.
func Error(format string, args ...interface{}) {
	log.Printf(prefix+format, args...)
}
