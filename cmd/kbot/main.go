package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/text/encoding/charmap"

	"github.com/kbot/kbot"
)

const version = "0.1"

func usage() {
	fmt.Println("Usage:   kbot -s <server> -p <port> -c <channel> -n <nickname>")
	fmt.Println("              -x <password> -l (charmap)")
	fmt.Println("Example: kbot -s chat.freenode.net -p 6667 -c ##kbot -n kbot")
	fmt.Printf("Version %s\n", version)
	os.Exit(1)
}

func main() {
	address := flag.String("s", "chat.freenode.net", "server address")
	portFlag := flag.String("p", "6667", "server port")
	nickname := flag.String("n", "kbot", "nickname")
	channel := flag.String("c", "##kbot", "channel to join on login")
	passwordFlag := flag.String("x", "", "NickServ password; pass an explicit empty value (-x=) to be prompted, a bare -x without a value is not accepted")
	legacyCharmap := flag.Bool("l", false, "transcode the wire through Latin-1 instead of UTF-8")
	flag.Parse()

	if _, err := strconv.ParseUint(*portFlag, 10, 16); err != nil {
		fmt.Println("Error: port value invalid.")
		usage()
	}

	password := *passwordFlag
	if password == "" && flagPassed("x") {
		fmt.Print("Please enter your password: ")
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		password = trimNewline(line)
	}

	opts := []kbot.Option{
		kbot.WithAddress(*address),
		kbot.WithPort(*portFlag),
		kbot.WithNickname(*nickname),
		kbot.WithChannel(*channel),
		kbot.WithPassword(password),
		kbot.WithLogger(kbot.NewStdLogger(false)),
	}
	if *legacyCharmap {
		opts = append(opts, kbot.WithCharmap(charmap.ISO8859_1))
	}

	server, err := kbot.ConnectionNew(opts...)
	if err != nil {
		fmt.Printf("Aborting: %v\n", err)
		os.Exit(1)
	}
	server.SendChannel(*channel, "Hello!")
	server.DumpInfo()

	manager, err := kbot.NewManager(server)
	if err != nil {
		fmt.Printf("Aborting: %v\n", err)
		os.Exit(1)
	}

	workers := kbot.NewWorkerSet()
	workers.Launch(manager)
	workers.WaitAll()
	fmt.Println("Shutting down")
}

func flagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
