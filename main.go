package main

import (
	"github.com/yedidyatob/WhatsAppAssistant/cmd"
)

func main() {
	cmd.Execute()
}
