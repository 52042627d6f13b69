package main

import (
	"flag"
	"testing"

	"github.com/urfave/cli"

	"gaugecode-go/bus"
)

func cliContext(args ...string) *cli.Context {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	_ = set.Parse(args)
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestParseArgs(t *testing.T) {
	v, err := parseArgs(cliContext("0x68", "-1"), bits8u, bits8s)
	if err != nil {
		t.Fatal(err)
	}
	if v[0] != 0x68 || v[1] != -1 {
		t.Fatalf("got %v", v)
	}

	for _, args := range [][]string{{"256"}, {"abc"}, {"1", "2"}} {
		if _, err := parseArgs(cliContext(args...), bits8u); err == nil {
			t.Errorf("%v accepted", args)
		}
	}
}

func TestTopicString(t *testing.T) {
	if s := topicString(bus.T("gauge", "main", "ctrl", 3)); s != "gauge/main/ctrl/3" {
		t.Fatalf("got %q", s)
	}
}
