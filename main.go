package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/hawkingrei/mihari/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logrus.WithError(err).Error("mihari exited with an error")
		os.Exit(1)
	}
}
