package main

import "github.com/vulntrack/vulntrack/cmd/vulntrack"

func main() {
	vulntrack.Execute()
}
