package main

import "github.com/andresmejia3/enroll/cmd"

func main() {
	cmd.Execute()
}
