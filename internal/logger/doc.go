// Package logger provides terminal output and the debug log for gitwatch.
//
// Logger separates two audiences. Info, Warning and Error go to the debug
// log, a JSON file written through zap when debug logging is enabled.
// InfoToUser, WarningToUser and Success also print a prefixed line to the
// terminal; StatusMessage prints without logging. Error always reaches stderr.
//
// In verbose mode Warning is echoed to the terminal as well.
package logger
