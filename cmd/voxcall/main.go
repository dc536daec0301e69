package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	ossignal "os/signal"
	"strconv"
	"strings"
	"syscall"

	"vox_chat/native/internal/api"
	"vox_chat/native/internal/call"
	"vox_chat/native/internal/config"
	"vox_chat/native/internal/domain"
	"vox_chat/native/internal/media"
	sigclient "vox_chat/native/internal/signal"
	"vox_chat/native/internal/summary"
	"vox_chat/native/internal/viewer"
)

const helpText = `voxcall - Voice/video calling client for the vox chat platform

Usage:
  voxcall [options]

Environment Variables (required):
  VOX_SERVER     Chat server base URL (e.g. https://chat.example.com)
  VOX_TOKEN      API bearer token
  VOX_USER_ID    Numeric id of the signed-in user
  VOX_USER_NAME  Display name of the signed-in user

Environment Variables (optional):
  VOX_RELAY_URL   Signaling relay websocket URL (derived from VOX_SERVER if unset)
  VOX_AVATAR_URL  Avatar URL carried in signal envelopes
  VOX_CONTACTS    Comma-separated user ids to listen for calls from
  VOX_GROUPS      Comma-separated group ids to listen for calls on

Commands (stdin):
  call <user-id> [video]    start a call to a user
  group <group-id> [video]  start a call on a group channel
  accept | reject | hangup  answer, decline or end the current call
  mute | camera             toggle microphone / camera
  status                    print the current call state
  quit                      exit

Options:
  -h, --help  Show this help message
`

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Print(helpText)
		os.Exit(0)
	}

	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %s, shutting down", sig)
		cancel()
	}()

	self := domain.User{ID: cfg.UserID, Name: cfg.UserName, AvatarURL: cfg.AvatarURL}

	notify := func(text string) {
		fmt.Printf("** %s\n", text)
	}

	apiClient := api.NewClient(cfg.ServerURL, cfg.Token)
	reporter := summary.NewReporter(apiClient, notify)
	machine := call.NewMachine(self, media.NewMedia, reporter, notify)

	sc := sigclient.NewClient(cfg.RelayURL, cfg.Token, machine)
	machine.SetSignaler(sc)

	v := viewer.New(machine)
	machine.SetOnChange(v.HandleChange)
	v.SetOnChange(func(view call.View) {
		printView(view)
	})

	if err := sc.Connect(); err != nil {
		log.Fatalf("[main] signal connect: %v", err)
	}

	// Listen for inbound calls on every configured conversation channel.
	for _, id := range cfg.Contacts {
		conv := domain.Conversation{ID: id}
		if err := sc.Subscribe(conv.ChannelName(self.ID)); err != nil {
			log.Fatalf("[main] subscribe: %v", err)
		}
	}
	for _, id := range cfg.Groups {
		conv := domain.Conversation{ID: id, IsGroup: true}
		if err := sc.Subscribe(conv.ChannelName(self.ID)); err != nil {
			log.Fatalf("[main] subscribe: %v", err)
		}
	}

	go commandLoop(cancel, v)

	<-ctx.Done()
	log.Printf("[main] shutting down")

	if err := machine.HangUp(); err != nil {
		log.Printf("[main] hangup: %v", err)
	}
	sc.Close()

	log.Printf("[main] done")
}

func commandLoop(cancel context.CancelFunc, v *viewer.Viewer) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "call", "group":
			if len(fields) < 2 {
				fmt.Printf("usage: %s <id> [video]\n", fields[0])
				continue
			}
			id, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Printf("invalid id %q\n", fields[1])
				continue
			}
			callType := domain.CallAudio
			if len(fields) > 2 && fields[2] == "video" {
				callType = domain.CallVideo
			}
			conv := domain.Conversation{ID: id, Name: fmt.Sprintf("#%d", id), IsGroup: fields[0] == "group"}
			if err := v.StartCall(conv, callType); err != nil {
				fmt.Printf("start call: %v\n", err)
			}

		case "accept":
			if err := v.AcceptCall(); err != nil {
				fmt.Printf("accept: %v\n", err)
			}
		case "reject":
			if err := v.RejectCall(); err != nil {
				fmt.Printf("reject: %v\n", err)
			}
		case "hangup":
			if err := v.HangUp(); err != nil {
				fmt.Printf("hangup: %v\n", err)
			}
		case "mute":
			v.ToggleMute()
		case "camera":
			v.ToggleCamera()
		case "status":
			printView(v.Snapshot())
		case "quit", "exit":
			cancel()
			return
		default:
			fmt.Printf("unknown command %q (try -h)\n", fields[0])
		}
	}
	cancel()
}

func printView(view call.View) {
	switch view.Status {
	case call.StatusIdle:
		fmt.Println("-- idle")
	case call.StatusActive:
		fmt.Printf("-- %s %s call with %s [%s] muted=%v camera_off=%v\n",
			view.Status, view.CallType, view.Conversation.Name,
			viewer.DurationLabel(view), view.Muted, view.CameraOff)
	default:
		fmt.Printf("-- %s %s call with %s\n", view.Status, view.CallType, view.Conversation.Name)
	}
}
