// Command sommelier runs the wine recommendation service and its maintenance tasks.
package main

func main() {
	Execute()
}
