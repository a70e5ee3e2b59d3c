package logger

import (
    "os"
    "time"

    "github.com/natefinch/lumberjack"
    logrus "github.com/sirupsen/logrus"
)

// Setup initializes Logrus with a rotating log file.
func Setup() {
    rotator := &lumberjack.Logger{
        Filename:   logFile(),
        MaxSize:    10, // megabytes
        MaxBackups: 7,
        MaxAge:     7, // days
        Compress:   true,
    }

    logrus.SetOutput(rotator)
    logrus.SetFormatter(&logrus.TextFormatter{
        FullTimestamp:   true,
        TimestampFormat: time.RFC3339,
    })
    logrus.SetLevel(logrus.DebugLevel)
}

// SetupConsole keeps logs on stderr; used by the tracking agent.
func SetupConsole() {
    logrus.SetOutput(os.Stderr)
    logrus.SetFormatter(&logrus.TextFormatter{
        FullTimestamp:   true,
        TimestampFormat: time.RFC3339,
    })
    logrus.SetLevel(logrus.InfoLevel)
}

func logFile() string {
    if v := os.Getenv("LOG_FILE"); v != "" {
        return v
    }
    return "./logs/app.log"
}
