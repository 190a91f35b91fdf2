//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Unit runs the package test suite.
func (Test) Unit() error {
	fmt.Println("go test ./...")
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}

// Race runs the package test suite with the race detector enabled.
func (Test) Race() error {
	fmt.Println("go test -race ./...")
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream())
	return err
}
