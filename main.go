package main

import "github.com/andresmejia3/facedb/cmd"

func main() {
	cmd.Execute()
}
