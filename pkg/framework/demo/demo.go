package demo

import (
	"github.com/cuemby/burrow/pkg/child"
)

// Name is the framework name the demo registers under
const Name = "demo"

func init() {
	child.Register(Name, child.Framework{
		NewAgent:  NewAgent,
		NewWorker: NewWorker,
	})
}
