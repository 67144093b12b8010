package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "asset-id":
		return cmdAssetID(args[1:], out, errOut)
	case "asset-cid":
		return cmdAssetCID(args[1:], out, errOut)
	case "hello":
		return cmdHello(args[1:], out, errOut)
	case "heartbeat":
		return cmdHeartbeat(args[1:], out, errOut)
	case "run":
		return cmdRun(args[1:], out, errOut)
	case "fetch":
		return cmdFetch(args[1:], out, errOut)
	case "publish":
		return cmdPublish(args[1:], out, errOut)
	case "tasks":
		return cmdTasks(args[1:], out, errOut)
	case "claim":
		return cmdClaim(args[1:], out, errOut)
	case "complete":
		return cmdComplete(args[1:], out, errOut)
	case "directory":
		return cmdDirectory(args[1:], out, errOut)
	case "archive":
		return cmdArchive(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "gep-node: gep-a2a exchange client")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  gep-node asset-id <asset.json>")
	fmt.Fprintln(w, "  gep-node asset-cid <asset.json>")
	fmt.Fprintln(w, "  gep-node hello [common flags]")
	fmt.Fprintln(w, "  gep-node heartbeat [common flags]")
	fmt.Fprintln(w, "  gep-node run [common flags]")
	fmt.Fprintln(w, "  gep-node fetch --type Gene|Capsule|EvolutionEvent [--limit n] [common flags]")
	fmt.Fprintln(w, "  gep-node publish (--gene <f> --capsule <f> --event <f> | --genre <g> [--element e ...] [--structure s] --template <t>) [common flags]")
	fmt.Fprintln(w, "  gep-node tasks [--limit n] [common flags]")
	fmt.Fprintln(w, "  gep-node claim --task <id> [common flags]")
	fmt.Fprintln(w, "  gep-node complete --task <id> --asset <asset_id> [common flags]")
	fmt.Fprintln(w, "  gep-node directory [common flags]")
	fmt.Fprintln(w, "  gep-node archive export [--out <file.tar>] <asset_id> ... [common flags]")
	fmt.Fprintln(w, "  gep-node archive import <file.tar> [common flags]")
	fmt.Fprintln(w, "  gep-node archive get <asset_id> [common flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Common flags:")
	fmt.Fprintln(w, "  --config <gep.yaml>   configuration file (default: none, built-in defaults)")
	fmt.Fprintln(w, "  --env <file>          dotenv file (default: .env, ignored when missing)")
	fmt.Fprintln(w, "  --hub <url>           overrides hub.url")
	fmt.Fprintln(w, "  --node-id <id>        overrides node.id")
	fmt.Fprintln(w, "  --profile <name>      profile the assigned node id is remembered under (default: default)")
	fmt.Fprintln(w, "  --state-dir <dir>     profile directory (default: ~/.gep/profiles)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - every networked command says hello first; the exchange may assign a new node id")
	fmt.Fprintln(w, "  - complete claims the task and completes it in one session")
	fmt.Fprintln(w, "  - complete requires the asset to be in the local archive (configure a localfs backend)")
	fmt.Fprintln(w, "  - asset-id/asset-cid print the identity of the asset file's content, ignoring any asset_id in it")
	fmt.Fprintln(w, "  - environment: GEP_HUB_URL, GEP_NODE_ID, GEP_REFERRER, GEP_TRANSPORT, GEP_LOG_LEVEL")
}
