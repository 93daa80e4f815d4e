package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/MareskoY/tutor-ai/internal/call"
	"github.com/MareskoY/tutor-ai/internal/websocket"
)

type envelope struct {
	Type    websocket.MessageType `json:"type"`
	Call    *call.Snapshot        `json:"call,omitempty"`
	Code    string                `json:"error_code,omitempty"`
	Message string                `json:"message,omitempty"`
}

func main() {
	addr := flag.String("addr", "localhost:8090", "control server address of the voice call client")
	action := flag.String("do", "", "command to send after connecting: start, stop, toggle or text")
	text := flag.String("text", "", "message for -do text")
	flag.Parse()

	wsURL := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	fmt.Printf("Connecting to: %s\n", wsURL.String())

	conn, resp, err := gorilla.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		if resp != nil {
			log.Fatalf("WebSocket connection failed with status %d: %v", resp.StatusCode, err)
		}
		log.Fatalf("WebSocket connection failed: %v", err)
	}
	defer conn.Close()

	if *action != "" {
		cmd := websocket.CommandMessage{
			BaseMessage: websocket.BaseMessage{Type: websocket.MessageTypeCommand, Timestamp: time.Now().Format(time.RFC3339)},
			Action:      websocket.CommandAction(*action),
			Text:        *text,
		}
		if err := conn.WriteJSON(cmd); err != nil {
			log.Fatalf("Failed to send command: %v", err)
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""))
		conn.Close()
	}()

	var lastStatus string
	printed := make(map[string]string)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !gorilla.IsCloseError(err, gorilla.CloseNormalClosure) {
				log.Printf("Connection closed: %v", err)
			}
			return
		}

		var msg envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Skipping malformed message: %v", err)
			continue
		}

		switch msg.Type {
		case websocket.MessageTypeError:
			fmt.Printf("! %s: %s\n", msg.Code, msg.Message)
		case websocket.MessageTypeSnapshot:
			if msg.Call == nil {
				continue
			}
			if msg.Call.Status != lastStatus {
				fmt.Printf("[%s] %s\n", msg.Call.State, msg.Call.Status)
				lastStatus = msg.Call.Status
			}
			for _, entry := range msg.Call.Entries {
				if !entry.IsFinal || printed[entry.ID] == entry.Text {
					continue
				}
				printed[entry.ID] = entry.Text
				fmt.Printf("%4ds %-9s %s\n", msg.Call.DurationSeconds, entry.Role+":", entry.Text)
			}
		}
	}
}
