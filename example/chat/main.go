// Command chat demonstrates the durable agent runtime with the in-process
// engine and a scripted model: it signals two runs on one session, polls for
// the correlated responses, and prints the accumulated conversation log.
package main

import (
	"context"
	"fmt"
	"os"

	"goa.design/clue/log"

	"github.com/durableai/agent-sdk-go/runtime/agent/chat"
	"github.com/durableai/agent-sdk-go/runtime/agent/engine/inmem"
	"github.com/durableai/agent-sdk-go/runtime/agent/entity"
	"github.com/durableai/agent-sdk-go/runtime/agent/model"
	"github.com/durableai/agent-sdk-go/runtime/agent/proxy"
	"github.com/durableai/agent-sdk-go/runtime/agent/session"
	"github.com/durableai/agent-sdk-go/runtime/agent/state"
	stateinmem "github.com/durableai/agent-sdk-go/runtime/agent/state/inmem"
	"github.com/durableai/agent-sdk-go/runtime/agent/telemetry"
)

// scripted answers every request with a canned line mentioning how many
// messages of history it received.
type scripted struct{}

func (scripted) Complete(_ context.Context, req model.Request) (*chat.Response, error) {
	text := fmt.Sprintf("echo %d: %s", len(req.Messages), req.Messages[len(req.Messages)-1].Text())
	return &chat.Response{
		Messages: []chat.Message{chat.NewTextMessage(chat.RoleAssistant, text)},
		Usage:    &chat.UsageDetails{InputTokenCount: chat.Int64(int64(len(req.Messages))), OutputTokenCount: chat.Int64(1)},
	}, nil
}

func (scripted) Stream(context.Context, model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func main() {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))

	exec, err := entity.New(scripted{}, entity.Options{Logger: telemetry.NewClueLogger()})
	if err != nil {
		fail(ctx, err)
	}
	store := stateinmem.New()
	eng, err := inmem.New(exec, inmem.Options{Store: store, Logger: telemetry.NewClueLogger()})
	if err != nil {
		fail(ctx, err)
	}
	defer eng.Close()

	agent, err := proxy.NewDurable(eng, proxy.PollOptions{})
	if err != nil {
		fail(ctx, err)
	}

	id := session.New("demo")
	log.Printf(ctx, "session %s", id)

	for _, turn := range []string{"hello", "tell me more"} {
		resp, err := agent.Run(ctx, id, []chat.Message{chat.NewTextMessage(chat.RoleUser, turn)}, nil)
		if err != nil {
			fail(ctx, err)
		}
		fmt.Printf("user: %s\nassistant: %s\n", turn, resp.Text())
	}

	doc, err := store.Load(ctx, id.String())
	if err != nil {
		fail(ctx, err)
	}
	st, err := state.Decode(doc)
	if err != nil {
		fail(ctx, err)
	}
	fmt.Printf("log entries: %d (schema %s)\n", st.Len(), state.CurrentSchemaVersion)
}

func fail(ctx context.Context, err error) {
	log.Error(ctx, err)
	os.Exit(1)
}
