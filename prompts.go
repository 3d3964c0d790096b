package main

import (
	"crypto/rand"
	"math/big"
)

// Each drafting round opens with one of these prompts; players answer it
// with the gif of their choice.
var roundPrompts = []string{
	"When the wifi drops mid-meeting",
	"Monday morning, 6 AM",
	"That feeling when your code compiles on the first try",
	"Explaining your job to your grandparents",
	"When someone says 'quick question'",
	"The last slice of pizza is up for grabs",
	"When the group chat goes silent after your joke",
	"Friday at 4:59 PM",
	"When autocorrect betrays you",
}

func randomPrompt() string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(roundPrompts))))
	if err != nil {
		return roundPrompts[0]
	}
	return roundPrompts[n.Int64()]
}
