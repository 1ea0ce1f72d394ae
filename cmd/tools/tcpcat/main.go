package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"
)

// tcpcat subscribes to symbols on a rate TCP server and prints every
// line it receives. Useful for eyeballing a running ratesimd.
func main() {
	addr := flag.String("addr", "127.0.0.1:5001", "rate server address")
	symbols := flag.String("symbols", "", "comma-separated symbols to subscribe")
	snapshot := flag.Bool("snapshot", false, "request a snapshot per symbol before streaming")
	timeout := flag.Duration("timeout", 5*time.Second, "dial timeout")
	flag.Parse()

	if *symbols == "" {
		log.Fatal("missing symbols; use -symbols EURUSD,USDJPY")
	}

	conn, err := net.DialTimeout("tcp", *addr, *timeout)
	if err != nil {
		log.Fatalf("dial %s: %v", *addr, err)
	}
	defer conn.Close()

	for _, symbol := range strings.Split(*symbols, ",") {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		if *snapshot {
			if _, err := fmt.Fprintf(conn, "snapshot|%s\r\n", symbol); err != nil {
				log.Fatalf("write: %v", err)
			}
		}
		if _, err := fmt.Fprintf(conn, "subscribe|%s\r\n", symbol); err != nil {
			log.Fatalf("write: %v", err)
		}
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		fmt.Println(strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read: %v\n", err)
		os.Exit(1)
	}
}
