// Command raftbooking-cli is an interactive client for a raftbooking
// cluster: it submits booking commands and follows NotLeader redirects
// until it finds the current leader.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"raftbooking/booking"
	"raftbooking/client"
)

func main() {
	serverAddr := flag.String("server", "localhost:7001", "booking service address of any node in the cluster")
	peerList := flag.String("peers", "", "comma-separated id=host:port raft addresses, used to follow leader redirects")
	flag.Parse()

	peerClientAddrs := parsePeerClientAddresses(*peerList)

	printBanner()
	log.Printf("connecting to %s", *serverAddr)

	c, err := client.NewBookingClient(*serverAddr)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer c.Close()

	log.Println("connected")
	printHelp()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		cmd := strings.ToUpper(parts[0])

		switch cmd {
		case "BOOK":
			if len(parts) != 5 {
				fmt.Println("Usage: BOOK <room> <start RFC3339> <end RFC3339> <requester>")
				continue
			}
			start, err := time.Parse(time.RFC3339, parts[2])
			if err != nil {
				fmt.Printf("bad start time: %v\n", err)
				continue
			}
			end, err := time.Parse(time.RFC3339, parts[3])
			if err != nil {
				fmt.Printf("bad end time: %v\n", err)
				continue
			}
			bookCmd := &booking.Command{
				Op:        booking.OpBook,
				Room:      parts[1],
				Start:     start,
				End:       end,
				Requester: parts[4],
			}
			submit(&c, peerClientAddrs, bookCmd)

		case "CANCEL":
			if len(parts) != 2 {
				fmt.Println("Usage: CANCEL <booking-id>")
				continue
			}
			cancelCmd := &booking.Command{Op: booking.OpCancel, BookingID: parts[1]}
			submit(&c, peerClientAddrs, cancelCmd)

		case "GET":
			if len(parts) != 2 {
				fmt.Println("Usage: GET <booking-id>")
				continue
			}
			b, found, err := c.GetBooking(parts[1])
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			if !found {
				fmt.Println("not found")
				continue
			}
			fmt.Printf("%s: room=%s start=%s end=%s requester=%s canceled=%v\n",
				b.ID, b.Room, b.Start.Format(time.RFC3339), b.End.Format(time.RFC3339), b.Requester, b.Canceled)

		case "QUIT", "EXIT":
			fmt.Println("bye")
			return

		default:
			fmt.Println("Unknown command. Available: BOOK, CANCEL, GET, QUIT")
		}
	}

	if err := scanner.Err(); err != nil {
		log.Fatalf("error reading input: %v", err)
	}
}

// submit sends cmd, following up to one NotLeader redirect to the
// hinted node's booking address before giving up.
func submit(c **client.BookingClient, peerClientAddrs map[string]string, cmd *booking.Command) {
	resp, err := (*c).SubmitCommand(cmd)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if resp.Success {
		fmt.Printf("ok: index=%d\n", resp.Index)
		return
	}

	addr, known := peerClientAddrs[resp.LeaderHint]
	if resp.LeaderHint == "" || !known {
		fmt.Printf("rejected: %s (hint=%q)\n", resp.Error, resp.LeaderHint)
		return
	}

	fmt.Printf("not leader, retrying against %s (%s)\n", resp.LeaderHint, addr)
	newClient, dialErr := client.NewBookingClient(addr)
	if dialErr != nil {
		fmt.Printf("failed to follow redirect: %v\n", dialErr)
		return
	}
	(*c).Close()
	*c = newClient

	resp, err = (*c).SubmitCommand(cmd)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if resp.Success {
		fmt.Printf("ok: index=%d\n", resp.Index)
	} else {
		fmt.Printf("rejected: %s (hint=%q)\n", resp.Error, resp.LeaderHint)
	}
}

// parsePeerClientAddresses turns "id=host:port" raft addresses into
// the booking service addresses raftbooking-node derives by default
// (raft port + 1), so NotLeader hints can be followed automatically.
func parsePeerClientAddresses(peers string) map[string]string {
	out := make(map[string]string)
	if peers == "" {
		return out
	}
	for _, entry := range strings.Split(peers, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		idAddr := strings.SplitN(entry, "=", 2)
		if len(idAddr) != 2 {
			continue
		}
		out[idAddr[0]] = defaultClientAddress(idAddr[1])
	}
	return out
}

func defaultClientAddress(raftAddr string) string {
	host, port, ok := strings.Cut(raftAddr, ":")
	if !ok {
		return raftAddr
	}
	var p int
	if _, err := fmt.Sscanf(port, "%d", &p); err != nil {
		return raftAddr
	}
	return fmt.Sprintf("%s:%d", host, p+1)
}

func printBanner() {
	fmt.Println("raftbooking client")
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  BOOK <room> <start RFC3339> <end RFC3339> <requester>")
	fmt.Println("  CANCEL <booking-id>")
	fmt.Println("  GET <booking-id>")
	fmt.Println("  QUIT")
}
