// Command credential_inspect prints the contents of a local credential
// database. Handy when the relay runs in local mode and a login keeps
// failing for no obvious reason.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

type record struct {
	Username  string `json:"username"`
	Digest    string `json:"digest"`
	CreatedAt int64  `json:"created_at"`
}

func main() {
	dbPath := flag.String("db", "./credentials.db", "Path to the badger credential DB")
	prefix := flag.String("prefix", "user:", "Key prefix to scan")
	flag.Parse()

	db, err := openReadOnly(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Username", "Digest", "Created"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				var rec record
				if err := json.Unmarshal(v, &rec); err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}

				// Show a digest fragment only, enough to compare two rows.
				digest := rec.Digest
				if len(digest) > 12 {
					digest = digest[:12] + "…"
				}

				table.Append([]string{
					string(item.Key()),
					rec.Username,
					digest,
					time.Unix(rec.CreatedAt, 0).Format(time.DateTime),
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func openReadOnly(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
