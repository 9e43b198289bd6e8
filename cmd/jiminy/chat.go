package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/jiminy/pkg/client"
	"github.com/go-go-golems/jiminy/pkg/events"
	"github.com/go-go-golems/jiminy/pkg/session"
)

func newChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the model from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context())
		},
	}

	cmd.Flags().String("server-url", "http://localhost:5000", "Base URL of a running jiminy server")
	_ = viper.BindPFlag("server-url", cmd.Flags().Lookup("server-url"))

	return cmd
}

func runChat(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router := events.NewRouter()
	defer func() { _ = router.Close() }()

	c := client.NewClient(viper.GetString("server-url"))
	chatSession := session.NewChatSession(c, session.WithPublisher(router))
	directory := session.NewChatDirectory(c, session.WithDirectoryPublisher(router))

	// Failure notices surface through the event stream, not through ad hoc
	// prints scattered across the orchestrators.
	notices, err := router.Subscribe(ctx, events.TopicSession)
	if err != nil {
		return err
	}
	directoryNotices, err := router.Subscribe(ctx, events.TopicDirectory)
	if err != nil {
		return err
	}
	go printFailureNotices(notices)
	go printFailureNotices(directoryNotices)

	directory.Refresh(ctx)
	printConversationList(directory)

	fmt.Println("Type a message, or /list, /select <id>, /rename <id> <title>, /quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "/quit":
			return nil
		case line == "/list":
			directory.Refresh(ctx)
			printConversationList(directory)
		case strings.HasPrefix(line, "/select "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/select "))
			convs := directory.Conversations()
			conv, ok := convs[id]
			if !ok {
				fmt.Printf("unknown conversation %s\n", id)
				continue
			}
			chatSession.Select(&conv)
			for _, m := range chatSession.Messages() {
				fmt.Println(m.View())
			}
		case strings.HasPrefix(line, "/rename "):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "/rename "))
			id, title, found := strings.Cut(rest, " ")
			if !found {
				fmt.Println("usage: /rename <id> <title>")
				continue
			}
			if err := directory.Rename(ctx, id, title); err != nil {
				fmt.Printf("rename failed: %v\n", err)
			}
		case line == "":
			continue
		default:
			if err := chatSession.Send(ctx, line); err != nil {
				continue
			}
			messages := chatSession.Messages()
			if len(messages) > 0 {
				fmt.Println(messages[len(messages)-1].View())
			}
		}
	}
}

func printFailureNotices(notices <-chan events.Event) {
	for e := range notices {
		if e.Error != "" {
			fmt.Printf("\n! %s\n", e.Error)
		}
	}
}

func printConversationList(directory *session.ChatDirectory) {
	convs := directory.Conversations()
	if len(convs) == 0 {
		fmt.Println("No saved conversations.")
		return
	}

	ids := make([]string, 0, len(convs))
	for id := range convs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		fmt.Printf("%s  %s (%d messages)\n", id, convs[id].Title, len(convs[id].Messages))
	}
}
