package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/docopt/docopt-go"

	"golang.org/x/term"

	"taskboard.com/mapsync"
)

const MapCtlVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Strategic map control.

The default urls are:
    api_url: https://api.taskboard.com
    connect_url: wss://connect.taskboard.com

Usage:
    mapctl whoami [--jwt=<jwt>]
    mapctl graph [--api_url=<api_url>] --project=<project_id>
        [--jwt=<jwt>]
        [--status=<status>]
        [--tasks]
    mapctl tail [--connect_url=<connect_url>] --project=<project_id>
        [--jwt=<jwt>]
        [--message_count=<message_count>]
    mapctl move-goal [--api_url=<api_url>] [--connect_url=<connect_url>]
        --project=<project_id>
        --goal=<goal_id>
        --x=<x> --y=<y>
        [--jwt=<jwt>]

Options:
    -h --help                        Show this screen.
    --version                        Show version.
    --api_url=<api_url>
    --connect_url=<connect_url>
    --jwt=<jwt>                      Your platform JWT. Prompted if omitted.
    --project=<project_id>           Project id.
    --status=<status>                Filter nodes: new, in_progress or done.
    --tasks                          Show tasks as nodes.
    --goal=<goal_id>                 Goal id.
    --x=<x>                          Position x.
    --y=<y>                          Position y.
    --message_count=<message_count>  Print this many messages then exit.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], MapCtlVersion)
	if err != nil {
		panic(err)
	}

	if whoami_, _ := opts.Bool("whoami"); whoami_ {
		whoami(opts)
	} else if graph_, _ := opts.Bool("graph"); graph_ {
		graph(opts)
	} else if tail_, _ := opts.Bool("tail"); tail_ {
		tail(opts)
	} else if moveGoal_, _ := opts.Bool("move-goal"); moveGoal_ {
		moveGoal(opts)
	}
}

func requireJwt(opts docopt.Opts) string {
	if byJwt, err := opts.String("--jwt"); err == nil && byJwt != "" {
		return byJwt
	}
	fmt.Fprint(os.Stderr, "jwt: ")
	byJwtBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		panic(err)
	}
	return string(byJwtBytes)
}

func apiUrl(opts docopt.Opts) string {
	if apiUrl_, err := opts.String("--api_url"); err == nil && apiUrl_ != "" {
		return apiUrl_
	}
	return "https://api.taskboard.com"
}

func connectUrl(opts docopt.Opts) string {
	if connectUrl_, err := opts.String("--connect_url"); err == nil && connectUrl_ != "" {
		return connectUrl_
	}
	return "wss://connect.taskboard.com"
}

func whoami(opts docopt.Opts) {
	byJwt, err := mapsync.ParseByJwtUnverified(requireJwt(opts))
	if err != nil {
		panic(err)
	}
	Out.Printf("user_id: %d\n", byJwt.UserId)
	Out.Printf("username: %s\n", byJwt.Username)
}

func graph(opts docopt.Opts) {
	projectId, err := opts.Int("--project")
	if err != nil {
		panic(err)
	}
	byJwt := requireJwt(opts)

	api := mapsync.NewMapApi(apiUrl(opts))
	defer api.Close()
	api.SetByJwt(byJwt)

	loader := mapsync.NewBaselineLoader(api, projectId)
	snapshot, err := loader.Load(context.Background())
	if err != nil {
		panic(err)
	}

	store := mapsync.NewStore()
	store.ReplaceBaseline(snapshot)

	options := &mapsync.ViewOptions{}
	if tasks_, _ := opts.Bool("--tasks"); tasks_ {
		options.ShowTasksAsNodes = true
	}
	if status_, err := opts.String("--status"); err == nil && status_ != "" {
		status := mapsync.Status(status_)
		options.StatusFilter = &status
	}

	g := mapsync.AssembleGraph(store.View(), options)
	for _, node := range g.Nodes {
		Out.Printf("node %-12s %-24q %-12s progress=%.0f%% (%.0f, %.0f)\n",
			node.NodeId, node.Title, node.Status, node.Progress, node.X, node.Y)
	}
	for _, edge := range g.Edges {
		Out.Printf("edge %-12s %s -> %s %q\n", edge.EdgeId, edge.Source, edge.Target, edge.Label)
	}
	for _, stickyNote := range g.StickyNotes {
		Out.Printf("sticky %-10d %-24q (%.0f, %.0f)\n",
			stickyNote.StickyId, stickyNote.Text, stickyNote.X, stickyNote.Y)
	}
}

func tail(opts docopt.Opts) {
	projectId, err := opts.Int("--project")
	if err != nil {
		panic(err)
	}
	byJwt := requireJwt(opts)

	messageCount := -1
	if messageCount_, err := opts.Int("--message_count"); err == nil {
		messageCount = messageCount_
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := mapsync.NewMapTransportWithDefaults(ctx, connectUrl(opts), projectId, byJwt)
	defer transport.Close()

	i := 0
	for frame := range transport.Receive() {
		Out.Printf("%s\n", string(frame))
		i += 1
		if 0 <= messageCount && messageCount <= i {
			return
		}
	}
}

func moveGoal(opts docopt.Opts) {
	projectId, err := opts.Int("--project")
	if err != nil {
		panic(err)
	}
	goalId, err := opts.Int("--goal")
	if err != nil {
		panic(err)
	}
	x, err := opts.Float64("--x")
	if err != nil {
		panic(err)
	}
	y, err := opts.Float64("--y")
	if err != nil {
		panic(err)
	}
	byJwt := requireJwt(opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := mapsync.NewMapClientWithDefaults(ctx, apiUrl(opts), connectUrl(opts), projectId, byJwt)
	if err != nil {
		panic(err)
	}
	defer client.Close()

	callback, channel := mapsync.NewBlockingApiCallback[*mapsync.Goal](ctx)
	client.Mutator().MoveGoal(goalId, x, y, callback)
	result := <-channel
	if result.Error != nil {
		panic(result.Error)
	}
	Out.Printf("goal %d -> (%.0f, %.0f)\n", goalId, result.Result.X, result.Result.Y)

	// let the broadcast drain before teardown
	time.Sleep(1 * time.Second)
}
