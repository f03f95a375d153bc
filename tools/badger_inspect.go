package main

import (
	"bourracho/domain"
	"bourracho/repositories"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/pflag"
)

type inspectConfig struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH"`
	Colours        bool   `envconfig:"INSPECT_COLOURS" default:"true"`
}

type row struct {
	Key    string
	Type   string
	ID     string
	Detail string
}

func main() {
	var cfg inspectConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal("Invalid environment: ", err)
	}
	if cfg.BadgerFilepath == "" {
		cfg.BadgerFilepath = database.DefaultPath
	}

	flags := pflag.NewFlagSet("badger-inspect", pflag.ExitOnError)
	dbPath := flags.String("db", cfg.BadgerFilepath, "Path to badger DB")
	prefix := flags.StringP("prefix", "p", "conv:", "Key prefix to scan (user:, conv:, member:, msg:, msgid:, media:)")
	limit := flags.IntP("limit", "n", 100, "Maximum number of rows")
	colours := flags.Bool("colours", cfg.Colours, "Colorize the type column")
	_ = flags.Parse(os.Args[1:])

	db, err := badger.Open(badger.DefaultOptions(*dbPath).WithReadOnly(true).WithLoggingLevel(badger.ERROR))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer func() { _ = db.Close() }()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "ID", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	count := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes) && count < *limit; it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(v []byte) error {
				r := describe(key, v)
				if *colours {
					r.Type = typeColour(r.Type).Render(r.Type)
				}
				table.Append([]string{r.Key, r.Type, r.ID, r.Detail})
				return nil
			})
			if err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
	fmt.Printf("%d row(s)\n", count)
}

// describe decodes a value according to its key prefix. Undecodable
// documents are reported in the row rather than stopping the scan.
func describe(key string, value []byte) row {
	r := row{Key: key}
	switch {
	case strings.HasPrefix(key, "user:"):
		var user domain.User
		if err := repositories.Decode(value, &user); err != nil {
			return undecodable(r, "USER", err)
		}
		r.Type, r.ID, r.Detail = "USER", user.ID, user.Username
	case strings.HasPrefix(key, "conv:"):
		var conversation domain.Conversation
		if err := repositories.Decode(value, &conversation); err != nil {
			return undecodable(r, "CONV", err)
		}
		r.Type, r.ID = "CONV", conversation.ID
		r.Detail = fmt.Sprintf("%q admin=%s members=%d locked=%t visible=%t",
			conversation.Name, conversation.AdminID, len(conversation.Members), conversation.IsLocked, conversation.IsVisible)
	case strings.HasPrefix(key, "msg:"):
		var message domain.Message
		if err := repositories.Decode(value, &message); err != nil {
			return undecodable(r, "MSG", err)
		}
		r.Type, r.ID = "MSG", message.ID
		r.Detail = fmt.Sprintf("%s: %s (reacts=%d votes=%d medias=%d)", message.IssuerID,
			truncate(message.Content, 40), len(message.Reacts), len(message.Votes), len(message.MediaMetadatas))
	default:
		r.Type, r.Detail = "INDEX", truncate(string(value), 60)
	}
	return r
}

func undecodable(r row, kind string, err error) row {
	r.Type, r.Detail = kind, "undecodable: "+err.Error()
	return r
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}

func typeColour(kind string) color.Style {
	switch kind {
	case "USER":
		return color.New(color.FgCyan)
	case "CONV":
		return color.New(color.FgGreen)
	case "MSG":
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgGray)
	}
}
