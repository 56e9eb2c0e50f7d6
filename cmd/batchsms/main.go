package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/afshinator/BatchSMS/internal/appstate"
	"github.com/afshinator/BatchSMS/internal/composer"
	"github.com/afshinator/BatchSMS/internal/config"
	"github.com/afshinator/BatchSMS/internal/ingest"
	"github.com/afshinator/BatchSMS/internal/model"
	"github.com/afshinator/BatchSMS/internal/prefs"
	"github.com/afshinator/BatchSMS/internal/selection"
	"github.com/afshinator/BatchSMS/internal/send"
	"github.com/afshinator/BatchSMS/internal/services"
	"github.com/afshinator/BatchSMS/pkg/logger"
)

const usage = `commands:
  load <file>        load a CSV contact document
  rows               show contacts and selection state
  all | none         select every contact / clear the selection
  toggle <n>         flip one contact in or out of the selection
  phone <n>          flip mobile/priority phone for a dual-phone contact
  pref <type>        set preferred phone type (mobile|priority)
  finalize           freeze the selection into a recipient list
  reopen             reopen the selection for editing
  msgs               show the three saved messages
  setmsg <slot> <~>  save a message ([name] is replaced per recipient)
  use <slot>         make a saved message the active one
  start              send to the finalized recipients, one at a time
  status             show the current run
  reset              return a finished run to idle
  quit`

func main() {
	if err := config.Load(argContainsEnvPath()); err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	in := bufio.NewReader(os.Stdin)

	var supervisor *send.Supervisor
	term := composer.NewTerminal(in, os.Stdout, composer.WithCancelRun(func() error {
		return supervisor.Cancel()
	}))
	supervisor = send.NewSupervisor(term, send.WithDelay(config.Get().SendStepDelay))

	csvOpts := ingest.DefaultOptions()
	if d := config.Get().CsvDelimiter; d != "" {
		csvOpts.Delimiter = d
	}

	svc := services.NewWorkflowService(
		appstate.New(),
		selection.NewSession(),
		prefs.NewService(prefs.NewMemoryStore()),
		supervisor,
		nil,
		csvOpts,
	)

	ctx := context.Background()
	fmt.Println("batchsms - batch SMS workflow")
	fmt.Println(usage)

	for {
		fmt.Print("> ")
		line, err := in.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 0 {
			continue
		}

		cmd, args := fields[0], fields[1:]
		switch cmd {
		case "quit", "exit":
			return
		case "help":
			fmt.Println(usage)
		case "load":
			if len(args) != 1 {
				fmt.Println("usage: load <file>")
				continue
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			doc, _, err := svc.LoadDocument(ctx, string(data), args[0])
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Printf("loaded %d contacts (%d rows skipped)\n", len(doc.Rows), doc.SkippedRows)
		case "rows":
			printRows(ctx, svc)
		case "all":
			report(svc.SelectAll())
		case "none":
			report(svc.SelectNone())
		case "toggle":
			withIndex(args, func(i int) { report(svc.ToggleRow(i)) })
		case "phone":
			withIndex(args, func(i int) { report(svc.TogglePhoneChoice(i)) })
		case "pref":
			if len(args) != 1 {
				fmt.Println("usage: pref mobile|priority")
				continue
			}
			t, err := model.ParsePhoneType(args[0])
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			report(svc.SetPhonePref(ctx, t))
		case "finalize":
			recipients, err := svc.FinalizeSelection(ctx)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Printf("%d recipients ready\n", len(recipients))
			for _, r := range recipients {
				fmt.Printf("  %s  %s (%s)\n", r.Name, r.Phone, r.PhoneType)
			}
		case "reopen":
			report(svc.ResetSelection())
		case "msgs":
			set := svc.Messages(ctx)
			active := svc.SelectedSlot(ctx)
			for _, s := range []struct {
				slot model.MessageSlot
				body string
			}{
				{model.MessageSlot1, set.Slot1},
				{model.MessageSlot2, set.Slot2},
				{model.MessageSlot3, set.Slot3},
			} {
				marker := " "
				if s.slot == active {
					marker = "*"
				}
				fmt.Printf("%s [%s] %s\n", marker, s.slot, s.body)
			}
		case "setmsg":
			if len(args) < 2 {
				fmt.Println("usage: setmsg <slot> <text>")
				continue
			}
			slot, err := model.ParseMessageSlot(args[0])
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			set := svc.Messages(ctx)
			body := strings.Join(args[1:], " ")
			switch slot {
			case model.MessageSlot1:
				set.Slot1 = body
			case model.MessageSlot2:
				set.Slot2 = body
			case model.MessageSlot3:
				set.Slot3 = body
			}
			report(svc.SaveMessages(ctx, set))
		case "use":
			if len(args) != 1 {
				fmt.Println("usage: use <slot>")
				continue
			}
			slot, err := model.ParseMessageSlot(args[0])
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			report(svc.SelectSlot(ctx, slot))
		case "start":
			snap, err := svc.StartRun(ctx)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Printf("run %s started: %d recipients\n", snap.RunID, snap.Total)
			// The composer owns stdin until the run settles.
			<-supervisor.Done()
			printStatus(svc.RunStatus())
		case "status":
			printStatus(svc.RunStatus())
		case "reset":
			report(svc.ResetRun())
		default:
			fmt.Println("unknown command; try: help")
		}
	}
}

func printRows(ctx context.Context, svc *services.WorkflowService) {
	rows, err := svc.Rows(ctx)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	for _, r := range rows {
		mark := " "
		if r.Selected {
			mark = "x"
		}
		fmt.Printf("[%s] %2d  %-12s mobile=%-14s priority=%-14s use=%s\n",
			mark, r.Index, r.FirstName, r.MobilePhone, r.PriorityPhone, r.PhoneChoice)
	}
}

func printStatus(snap send.Snapshot) {
	fmt.Printf("run=%s state=%s cursor=%d/%d\n", snap.RunID, snap.State, snap.Cursor, snap.Total)
	for i, st := range snap.Statuses {
		fmt.Printf("  %2d  %-12s %-14s %s\n", i, st.Name, st.Phone, st.Status)
	}
}

func withIndex(args []string, fn func(int)) {
	if len(args) != 1 {
		fmt.Println("usage: <command> <row>")
		return
	}
	i, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Println("error: row must be a number")
		return
	}
	fn(i)
}

func report(err error) {
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("ok")
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
