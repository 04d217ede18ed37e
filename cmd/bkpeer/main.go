// Command bkpeer is a small CLI exercising the bkclient façade against a
// real bookie, grounded on flowctl's single-binary, flags.NewParser
// sub-command style.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	flags "github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/quayledger/bkclient/bkclient"
)

var green = color.New(color.FgGreen).SprintFunc()
var red = color.New(color.FgRed).SprintFunc()

type logConfig struct {
	Level  string `long:"level" env:"LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal" description:"Logging level"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"json" choice:"text" choice:"color" description:"Logging output format"`
}

func initLog(cfg logConfig) {
	switch cfg.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "color":
		log.SetFormatter(&log.TextFormatter{ForceColors: true})
	default:
		log.SetFormatter(&log.TextFormatter{})
	}
	if lvl, err := log.ParseLevel(cfg.Level); err != nil {
		log.WithField("err", err).Fatal("unrecognized log level")
	} else {
		log.SetLevel(lvl)
	}
}

type cmdAdd struct {
	Peer     string `long:"peer" required:"true" description:"bookie address, host:port"`
	LedgerID int64  `long:"ledger" required:"true" description:"ledger id"`
	EntryID  int64  `long:"entry" required:"true" description:"entry id"`
	Body     string `long:"body" required:"true" description:"entry payload"`
	Log      logConfig
	bkclient.Config
}

func (cmd *cmdAdd) Execute(_ []string) error {
	initLog(cmd.Log)

	var c = bkclient.New(cmd.Peer, cmd.Config)
	defer c.Close()

	var done = make(chan struct{})
	var outcome bkclient.ErrorKind
	var err = c.AddEntry(cmd.LedgerID, cmd.EntryID, nil, []byte(cmd.Body), 0, func(rc bkclient.ErrorKind, ledgerID, entryID int64, peer string, _ interface{}) {
		outcome = rc
		log.WithFields(log.Fields{
			"ledger": ledgerID,
			"entry":  entryID,
			"peer":   peer,
			"rc":     rc,
		}).Info("add_entry completed")
		close(done)
	}, nil)
	if err != nil {
		return err
	}

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timed out waiting for add_entry to complete")
	}
	if outcome != bkclient.Ok {
		fmt.Println(red(string(outcome)))
		return fmt.Errorf("add_entry failed: %s", outcome)
	}
	fmt.Println(green("ok"))
	return nil
}

type cmdRead struct {
	Peer     string `long:"peer" required:"true" description:"bookie address, host:port"`
	LedgerID int64  `long:"ledger" required:"true" description:"ledger id"`
	EntryID  int64  `long:"entry" default:"-1" description:"entry id, or -1 for LAST_ADD_CONFIRMED"`
	Log      logConfig
	bkclient.Config
}

func (cmd *cmdRead) Execute(_ []string) error {
	initLog(cmd.Log)

	var c = bkclient.New(cmd.Peer, cmd.Config)
	defer c.Close()

	var done = make(chan struct{})
	var outcome bkclient.ErrorKind
	var body []byte
	var err = c.ReadEntry(cmd.LedgerID, cmd.EntryID, func(rc bkclient.ErrorKind, ledgerID, entryID int64, b []byte, _ interface{}) {
		outcome = rc
		body = b
		log.WithFields(log.Fields{
			"ledger": ledgerID,
			"entry":  entryID,
			"rc":     rc,
		}).Info("read_entry completed")
		close(done)
	}, nil)
	if err != nil {
		return err
	}

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timed out waiting for read_entry to complete")
	}
	if outcome != bkclient.Ok {
		fmt.Println(red(string(outcome)))
		return fmt.Errorf("read_entry failed: %s", outcome)
	}
	fmt.Println(green(string(body)))
	return nil
}

func main() {
	var parser = flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)

	_, err := parser.AddCommand("add", "Add an entry to a ledger", `
Issue a single add_entry request against a bookie and print the outcome.
`, &cmdAdd{Config: bkclient.DefaultConfig()})
	if err != nil {
		log.Fatal(err)
	}

	_, err = parser.AddCommand("read", "Read an entry from a ledger", `
Issue a single read_entry request against a bookie and print the outcome.
`, &cmdRead{Config: bkclient.DefaultConfig()})
	if err != nil {
		log.Fatal(err)
	}

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		log.WithField("err", err).Error("bkpeer failed")
		os.Exit(1)
	}
}
