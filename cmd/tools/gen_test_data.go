package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"time"

	"chat-relay/auth"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Seeds a Badger directory with users and conversations so the relay, the
// viewer and the inspector have something to show.
func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	users := flag.Int("users", 4, "Number of users, every pair gets a conversation")
	messages := flag.Int("messages", 12, "Messages per conversation")
	password := flag.String("password", "Password1234!", "Password of every seeded user")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	logger := logs.GetLoggerFromLevel(slog.LevelInfo)
	ctx := context.Background()
	userRepo := repositories.NewUserRepository(db, logger)
	conversations, err := repositories.NewConversationRepository(db, logger, nil)
	if err != nil {
		log.Fatalf("Conversation store: %v", err)
	}
	defer conversations.Close()

	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("Chat relay: seeding test data...")
	ids := make([]chat.ParticipantID, 0, *users)
	for i := range *users {
		email := fmt.Sprintf("user%d@example.com", i)
		user, err := userRepo.CreateUser(ctx, email, fmt.Sprintf("user%d", i), hash)
		if errors.Is(err, errors.ErrUserAlreadyExists) {
			ids = append(ids, chat.ParticipantID(email))
			continue
		}
		if err != nil {
			log.Fatalf("Create %s: %v", email, err)
		}
		ids = append(ids, user.ParticipantID())
	}

	start := time.Now().Add(-time.Duration(*messages) * time.Minute)
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			for n := range *messages {
				sender, receiver := a, b
				if n%2 == 1 {
					sender, receiver = b, a
				}
				msg, err := chat.NewMessage(uuid.NewString(), sender, receiver,
					fmt.Sprintf("message %d from %s", n, sender), start.Add(time.Duration(n)*time.Minute))
				if err != nil {
					log.Fatal(err)
				}
				// older half delivered, the rest waits for replay
				msg.Delivered = n < *messages/2
				if _, err = conversations.AppendMessage(ctx, msg); err != nil {
					log.Fatalf("Append: %v", err)
				}
			}
		}
	}

	fmt.Printf("Done: %d users (password %q) in %s\n", len(ids), *password, *dbPath)
}
