// Copyright © 2018 One Concern

package main

import "github.com/oneconcern/datasync/cmd/datasync/cmd"

func main() {
	cmd.Execute()
}
