package main

import (
	"github.com/ColonelBlimp/proctap/cmd/proctap"
	"github.com/ColonelBlimp/proctap/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
