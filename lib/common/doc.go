// Package common contains the ambient pieces shared by the library packages and the CLI:
// the logger factory (implementing dragonboat's logger.ILogger so every package can obtain
// its logger through logger.GetLogger) and the configuration struct the CLI assembles from
// flags and environment variables.
package common
