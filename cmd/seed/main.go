// Command seed prepares a local database: channels, direct conversations and
// bearer tokens for test users. Run it while the server is stopped.
//
//	seed -channel 1:general:1,2,3 -dm 10:1:2 -token 1,2,3
package main

import (
	"context"
	"flag"
	"fmt"
	"huddle/auth"
	"huddle/domain"
	"huddle/internal"
	"huddle/repositories"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, " ") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	var channels, dms listFlag
	flag.Var(&channels, "channel", "id:name:user,user,... (repeatable)")
	flag.Var(&dms, "dm", "id:user:user (repeatable)")
	tokens := flag.String("token", "", "comma separated user ids to mint tokens for")
	flag.Parse()

	config, err := internal.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	members := repositories.NewMembershipRepository(db, logger)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Kind", "ID", "Detail"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for _, raw := range channels {
		id, name, users, err := parseChannel(raw)
		if err != nil {
			log.Fatal(err)
		}
		if err := members.CreateChannel(ctx, id, name, users...); err != nil {
			log.Fatalf("Creating channel %d: %v", id, err)
		}
		table.Append([]string{"channel", strconv.FormatInt(id, 10), fmt.Sprintf("%s %v", name, users)})
	}

	for _, raw := range dms {
		id, first, second, err := parseDM(raw)
		if err != nil {
			log.Fatal(err)
		}
		if err := members.CreateDM(ctx, id, first, second); err != nil {
			log.Fatalf("Creating dm %d: %v", id, err)
		}
		table.Append([]string{"dm", strconv.FormatInt(id, 10), fmt.Sprintf("%d <-> %d", first, second)})
	}

	if *tokens != "" {
		users, err := parseUsers(*tokens)
		if err != nil {
			log.Fatal(err)
		}
		manager := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
		for _, userID := range users {
			token, err := manager.GenerateToken(userID)
			if err != nil {
				log.Fatalf("Minting token for %d: %v", userID, err)
			}
			table.Append([]string{"token", userID.String(), token})
		}
	}

	table.Render()
}

func parseChannel(raw string) (int64, string, []domain.UserID, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return 0, "", nil, fmt.Errorf("channel %q: expected id:name:users", raw)
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", nil, fmt.Errorf("channel %q: %w", raw, err)
	}
	users, err := parseUsers(parts[2])
	if err != nil {
		return 0, "", nil, fmt.Errorf("channel %q: %w", raw, err)
	}
	return id, parts[1], users, nil
}

func parseDM(raw string) (int64, domain.UserID, domain.UserID, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("dm %q: expected id:user:user", raw)
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("dm %q: %w", raw, err)
	}
	users, err := parseUsers(parts[1] + "," + parts[2])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("dm %q: %w", raw, err)
	}
	if len(users) != 2 {
		return 0, 0, 0, fmt.Errorf("dm %q: expected two users", raw)
	}
	return id, users[0], users[1], nil
}

func parseUsers(raw string) ([]domain.UserID, error) {
	var users []domain.UserID
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("user id %q: %w", field, err)
		}
		users = append(users, domain.UserID(id))
	}
	return users, nil
}
