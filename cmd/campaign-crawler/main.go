package main

import "github.com/JakeFAU/campaign-crawler/cmd"

func main() {
	cmd.Execute()
}
