// Command turnbot runs a Telegram bot whose chats are handled as sequential
// conversations.
package main

func main() {
	Execute()
}
