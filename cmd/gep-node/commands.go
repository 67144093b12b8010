package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"xdao.co/gep/asset"
	"xdao.co/gep/bounty"
	"xdao.co/gep/node"
)

type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

func readAsset(path string) (asset.Asset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return asset.Asset{}, err
	}
	var a asset.Asset
	if err := json.Unmarshal(b, &a); err != nil {
		return asset.Asset{}, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

func printJSON(out io.Writer, v any) {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

type statusJSON struct {
	NodeID            string `json:"node_id"`
	State             string `json:"state"`
	Credits           int64  `json:"credits"`
	Reputation        int64  `json:"reputation"`
	HeartbeatInterval string `json:"heartbeat_interval"`
}

func statusOf(st node.Status) statusJSON {
	return statusJSON{
		NodeID:            st.NodeID,
		State:             st.State.String(),
		Credits:           st.Credits,
		Reputation:        st.Reputation,
		HeartbeatInterval: st.HeartbeatInterval.String(),
	}
}

func cmdAssetID(args []string, out io.Writer, errOut io.Writer) int {
	return assetIdentity("asset-id", args, out, errOut, func(a asset.Asset) (string, error) {
		return asset.ComputeID(a)
	})
}

func cmdAssetCID(args []string, out io.Writer, errOut io.Writer) int {
	return assetIdentity("asset-cid", args, out, errOut, func(a asset.Asset) (string, error) {
		id, err := asset.ComputeID(a)
		if err != nil {
			return "", err
		}
		c, err := asset.CID(id)
		if err != nil {
			return "", err
		}
		return c.String(), nil
	})
}

func assetIdentity(name string, args []string, out io.Writer, errOut io.Writer, f func(asset.Asset) (string, error)) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(errOut, "usage: gep-node %s <asset.json>\n", name)
		return 2
	}
	a, err := readAsset(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read asset: %v\n", err)
		return 1
	}
	s, err := f(a)
	if err != nil {
		fmt.Fprintf(errOut, "invalid asset: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, s)
	return 0
}

// session parses common flags plus any extra ones, wires a client and says
// hello. The returned func releases the client.
func session(name string, args []string, errOut io.Writer, extra func(*flag.FlagSet)) (*client, func(), int) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.register(fs)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, 2
	}
	cl, err := common.open(errOut)
	if err != nil {
		fmt.Fprintf(errOut, "%s: %v\n", name, err)
		return nil, nil, 2
	}
	done := func() { _ = cl.Close() }
	if err := cl.register(context.Background()); err != nil {
		fmt.Fprintf(errOut, "%s: %v\n", name, err)
		done()
		return nil, nil, 1
	}
	return cl, done, 0
}

func cmdHello(args []string, out io.Writer, errOut io.Writer) int {
	cl, done, code := session("hello", args, errOut, nil)
	if cl == nil {
		return code
	}
	defer done()
	printJSON(out, statusOf(cl.session.Status()))
	return 0
}

func cmdHeartbeat(args []string, out io.Writer, errOut io.Writer) int {
	cl, done, code := session("heartbeat", args, errOut, nil)
	if cl == nil {
		return code
	}
	defer done()
	if err := cl.session.Heartbeat(context.Background()); err != nil {
		fmt.Fprintf(errOut, "heartbeat: %v\n", err)
		return 1
	}
	printJSON(out, statusOf(cl.session.Status()))
	return 0
}

func cmdRun(args []string, out io.Writer, errOut io.Writer) int {
	cl, done, code := session("run", args, errOut, nil)
	if cl == nil {
		return code
	}
	defer done()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := cl.session.Run(ctx)
	printJSON(out, statusOf(cl.session.Status()))
	if err != nil {
		fmt.Fprintf(errOut, "run: %v\n", err)
		return 1
	}
	return 0
}

func cmdFetch(args []string, out io.Writer, errOut io.Writer) int {
	var typ string
	var limit int
	cl, done, code := session("fetch", args, errOut, func(fs *flag.FlagSet) {
		fs.StringVar(&typ, "type", string(asset.TypeCapsule), "Asset type")
		fs.IntVar(&limit, "limit", 10, "Maximum number of assets")
	})
	if cl == nil {
		return code
	}
	defer done()
	assets, err := cl.publisher.FetchAssets(context.Background(), asset.Type(typ), limit)
	if err != nil {
		fmt.Fprintf(errOut, "fetch: %v\n", err)
		return 1
	}
	if assets == nil {
		assets = []asset.Asset{}
	}
	printJSON(out, assets)
	return 0
}

func cmdPublish(args []string, out io.Writer, errOut io.Writer) int {
	var genePath, capsulePath, eventPath string
	var genre, structure, template, problem, solution string
	var elements stringList
	cl, done, code := session("publish", args, errOut, func(fs *flag.FlagSet) {
		fs.StringVar(&genePath, "gene", "", "Gene asset file")
		fs.StringVar(&capsulePath, "capsule", "", "Capsule asset file")
		fs.StringVar(&eventPath, "event", "", "EvolutionEvent asset file")
		fs.StringVar(&genre, "genre", "", "Build a novel bundle for this genre")
		fs.Var(&elements, "element", "Genre element (repeatable)")
		fs.StringVar(&structure, "structure", "", "Narrative structure")
		fs.StringVar(&template, "template", "", "Capsule prompt template")
		fs.StringVar(&problem, "problem", "no reusable writing pattern for genre", "Evolution event problem")
		fs.StringVar(&solution, "solution", "published gene and capsule", "Evolution event solution")
	})
	if cl == nil {
		return code
	}
	defer done()

	var gene, capsule, event asset.Asset
	switch {
	case genre != "":
		if template == "" {
			fmt.Fprintln(errOut, "publish: --template is required with --genre")
			return 2
		}
		gene = asset.NovelGene(genre, elements, structure)
		capsule = asset.NovelCapsule(genre, template)
		event = asset.NewEvolutionEvent(genre, problem, solution, true, time.Now())
	case genePath != "" && capsulePath != "" && eventPath != "":
		var err error
		for _, p := range []struct {
			path string
			dst  *asset.Asset
		}{{genePath, &gene}, {capsulePath, &capsule}, {eventPath, &event}} {
			if *p.dst, err = readAsset(p.path); err != nil {
				fmt.Fprintf(errOut, "publish: %v\n", err)
				return 1
			}
		}
	default:
		fmt.Fprintln(errOut, "usage: gep-node publish (--gene <f> --capsule <f> --event <f> | --genre <g> --template <t>)")
		return 2
	}

	res, err := cl.publisher.Publish(context.Background(), gene, capsule, event)
	if err != nil && res.Gene.ID == "" {
		fmt.Fprintf(errOut, "publish: %v\n", err)
		return 1
	}
	printJSON(out, map[string]string{
		"gene":            res.Gene.ID,
		"capsule":         res.Capsule.ID,
		"evolution_event": res.Event.ID,
	})
	if err != nil {
		fmt.Fprintf(errOut, "publish: %v\n", err)
		return 1
	}
	return 0
}

type taskJSON struct {
	TaskID  string `json:"task_id"`
	Title   string `json:"title,omitempty"`
	Reward  int64  `json:"reward,omitempty"`
	State   string `json:"state"`
	AssetID string `json:"asset_id,omitempty"`
}

func tasksJSON(tasks []bounty.Task) []taskJSON {
	out := make([]taskJSON, len(tasks))
	for i, t := range tasks {
		out[i] = taskJSON{TaskID: t.ID, Title: t.Title, Reward: t.Reward, State: t.State.String(), AssetID: t.AssetID}
	}
	return out
}

func cmdTasks(args []string, out io.Writer, errOut io.Writer) int {
	var limit int
	cl, done, code := session("tasks", args, errOut, func(fs *flag.FlagSet) {
		fs.IntVar(&limit, "limit", bounty.DefaultFetchLimit, "Maximum number of tasks")
	})
	if cl == nil {
		return code
	}
	defer done()
	tasks, err := cl.bounty.FetchTasks(context.Background(), limit)
	if err != nil {
		fmt.Fprintf(errOut, "tasks: %v\n", err)
		return 1
	}
	printJSON(out, tasksJSON(tasks))
	return 0
}

func claimTask(cl *client, taskID string, limit int) error {
	ctx := context.Background()
	if _, err := cl.bounty.FetchTasks(ctx, limit); err != nil {
		return err
	}
	return cl.bounty.Claim(ctx, taskID)
}

func cmdClaim(args []string, out io.Writer, errOut io.Writer) int {
	var taskID string
	var limit int
	cl, done, code := session("claim", args, errOut, func(fs *flag.FlagSet) {
		fs.StringVar(&taskID, "task", "", "Task id")
		fs.IntVar(&limit, "limit", bounty.DefaultFetchLimit, "Tasks to fetch when looking for --task")
	})
	if cl == nil {
		return code
	}
	defer done()
	if taskID == "" {
		fmt.Fprintln(errOut, "usage: gep-node claim --task <id>")
		return 2
	}
	if err := claimTask(cl, taskID, limit); err != nil {
		fmt.Fprintf(errOut, "claim: %v\n", err)
		return 1
	}
	t, _ := cl.bounty.Task(taskID)
	printJSON(out, tasksJSON([]bounty.Task{t})[0])
	return 0
}

func cmdComplete(args []string, out io.Writer, errOut io.Writer) int {
	var taskID, assetID string
	var limit int
	cl, done, code := session("complete", args, errOut, func(fs *flag.FlagSet) {
		fs.StringVar(&taskID, "task", "", "Task id")
		fs.StringVar(&assetID, "asset", "", "asset_id of the published result")
		fs.IntVar(&limit, "limit", bounty.DefaultFetchLimit, "Tasks to fetch when looking for --task")
	})
	if cl == nil {
		return code
	}
	defer done()
	if taskID == "" || assetID == "" {
		fmt.Fprintln(errOut, "usage: gep-node complete --task <id> --asset <asset_id>")
		return 2
	}
	if !cl.archive.Published(assetID) {
		fmt.Fprintf(errOut, "complete: %v: %s\n", bounty.ErrUnpublishedAsset, assetID)
		return 1
	}
	if err := claimTask(cl, taskID, limit); err != nil {
		fmt.Fprintf(errOut, "complete: claim: %v\n", err)
		return 1
	}
	if err := cl.bounty.Complete(context.Background(), taskID, assetID); err != nil {
		fmt.Fprintf(errOut, "complete: %v\n", err)
		return 1
	}
	t, _ := cl.bounty.Task(taskID)
	printJSON(out, tasksJSON([]bounty.Task{t})[0])
	return 0
}

func cmdDirectory(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("directory", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cl, err := common.open(errOut)
	if err != nil {
		fmt.Fprintf(errOut, "directory: %v\n", err)
		return 2
	}
	defer cl.Close()
	if cl.http == nil {
		fmt.Fprintln(errOut, "directory: requires the http transport")
		return 2
	}
	agents, err := cl.http.Directory(context.Background())
	if err != nil {
		fmt.Fprintf(errOut, "directory: %v\n", err)
		return 1
	}
	printJSON(out, agents)
	return 0
}
