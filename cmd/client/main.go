// Command client is a line-oriented terminal front-end for the relay.
// It renders chat with each sender's color tag and keeps a live roster.
package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"chat-relay/client"
	"chat-relay/internal"
	"chat-relay/wire"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

type Config struct {
	ServerAddress string        `env:"CHAT_SERVER_ADDR,default=localhost:1234"`
	DialTimeout   time.Duration `env:"DIAL_TIMEOUT,default=5s"`
	LogLevel      string        `env:"LOG_LEVEL,default=warn"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := internal.LoggerFromString(config.LogLevel)

	stdin := bufio.NewScanner(os.Stdin)
	username, password, register, err := promptCredentials(stdin)
	if err != nil {
		return exitRuntime, err
	}

	c, err := client.Dial(log, config.ServerAddress, config.DialTimeout)
	if err != nil {
		return exitRuntime, err
	}
	defer c.Close()

	var result wire.AuthResult
	if register {
		result, err = c.Register(username, password)
	} else {
		result, err = c.Login(username, password)
	}
	if err != nil {
		return exitRuntime, err
	}
	if !result.Success {
		return exitRuntime, fmt.Errorf("%s", result.Reason)
	}
	fmt.Printf("%s\n", result.Reason)

	roster := newRoster()
	done := make(chan struct{})
	go func() {
		defer close(done)
		consumeEvents(c, roster)
	}()

	for stdin.Scan() {
		line := strings.TrimSpace(stdin.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return exitOK, nil
		case line == "/who":
			roster.print(username)
		case strings.HasPrefix(line, "/"):
			fmt.Println("commands: /who /quit")
		default:
			if err := c.Send(line); err != nil {
				return exitRuntime, err
			}
		}

		select {
		case <-done:
			return exitRuntime, fmt.Errorf("connection lost")
		default:
		}
	}
	return exitOK, nil
}

func promptCredentials(stdin *bufio.Scanner) (username, password string, register bool, err error) {
	mode := ask(stdin, "login or register? [l/r]: ")
	register = strings.HasPrefix(strings.ToLower(mode), "r")
	username = ask(stdin, "username: ")
	password = ask(stdin, "password: ")
	if username == "" || password == "" {
		return "", "", false, fmt.Errorf("username and password are required")
	}
	return username, password, register, nil
}

func ask(stdin *bufio.Scanner, prompt string) string {
	fmt.Print(prompt)
	if !stdin.Scan() {
		return ""
	}
	return strings.TrimSpace(stdin.Text())
}

func consumeEvents(c *client.Client, roster *roster) {
	for event := range c.Events() {
		switch ev := event.(type) {
		case client.ChatMessage:
			printChat(ev)
		case client.RosterSnapshot:
			roster.replace(ev.Users)
		case client.PeersJoined:
			roster.add(ev.Users)
			for _, u := range ev.Users {
				fmt.Printf("* %s joined\n", u.Username)
			}
		case client.PeersLeft:
			roster.remove(ev.Users)
			for _, u := range ev.Users {
				fmt.Printf("* %s left\n", u.Username)
			}
		case client.Disconnected:
			fmt.Println("* disconnected from server")
			return
		}
	}
}

func printChat(ev client.ChatMessage) {
	color.HEX(ev.Color).Printf("<%s> ", ev.Username)
	fmt.Println(ev.Message)
}

// roster tracks who is online. The event goroutine writes, the command
// loop reads.
type roster struct {
	mu    sync.Mutex
	users map[string]string // username -> color tag
}

func newRoster() *roster {
	return &roster{users: make(map[string]string)}
}

func (r *roster) replace(users []wire.Presence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = make(map[string]string, len(users))
	for _, u := range users {
		r.users[u.Username] = u.Color
	}
}

func (r *roster) add(users []wire.Presence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range users {
		r.users[u.Username] = u.Color
	}
}

func (r *roster) remove(users []wire.Presence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range users {
		delete(r.users, u.Username)
	}
}

func (r *roster) print(self string) {
	r.mu.Lock()
	names := make([]string, 0, len(r.users)+1)
	colors := map[string]string{self: ""}
	names = append(names, self)
	for name, tag := range r.users {
		names = append(names, name)
		colors[name] = tag
	}
	r.mu.Unlock()
	sort.Strings(names)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Username", "Color"})
	for _, name := range names {
		label := name
		if name == self {
			label += " (you)"
		}
		table.Append([]string{label, colors[name]})
	}
	table.Render()
}
