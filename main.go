/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "knotstore/cmd"

func main() {
	cmd.Execute()
}
