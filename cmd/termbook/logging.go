package main

import "termbook/internal/logger"

var log = logger.Named("main")
