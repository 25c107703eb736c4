package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/kbot-tools/actuatorctl/pkg/config"
	"github.com/pterm/pterm"
	log "github.com/sirupsen/logrus"

	_ "github.com/kbot-tools/actuatorctl/pkg/can/socketcan"
	_ "github.com/kbot-tools/actuatorctl/pkg/can/socketcanv2"
	_ "github.com/kbot-tools/actuatorctl/pkg/can/virtual"
)

const usage = `usage: actuatorctl [flags] <command> [args]

commands:
  interfaces                      list CAN interfaces and their state
  up                              bring every interface up
  read <actuators> <param>        read a parameter
  write <actuators> <param> <v>   write a parameter
  torque <actuators> <Nm>         set the torque limit
  zero <actuators>                set the current position as zero
  reset <actuators>               restore factory parameters
  save <actuators>                persist parameters
  reassign <id>                   give a factory reset actuator its id
  feedback [-stream] <actuators>  request status
  power [status|on|off|clear|restart|stream]

actuators : all, left_arm, right_arm, left_leg, right_leg, 3x or ids, comma separated
flags :
`

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"interfaces": cmdInterfaces,
	"up":         cmdUp,
	"read":       cmdRead,
	"write":      cmdWrite,
	"torque":     cmdTorque,
	"zero":       cmdZero,
	"reset":      cmdReset,
	"save":       cmdSave,
	"reassign":   cmdReassign,
	"feedback":   cmdFeedback,
	"power":      cmdPower,
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("c", "", "ini configuration file")
	interfaces := flag.String("i", "", "comma separated CAN interfaces, probed in order (default: discover)")
	driver := flag.String("driver", "", "bus driver : socketcan, socketcanv2, virtual")
	parallel := flag.Bool("parallel", false, "probe every interface at once")
	simulate := flag.Bool("simulate", false, "dry run against simulated actuators on virtual buses")
	yes := flag.Bool("y", false, "do not ask for confirmation")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Errorf("loading %v : %v", *configPath, err)
			return 1
		}
		cfg = loaded
	}
	if *interfaces != "" {
		cfg.Bus.Interfaces = strings.Split(*interfaces, ",")
	}
	if *driver != "" {
		cfg.Bus.Driver = *driver
	}
	if *parallel {
		cfg.Bus.Parallel = true
	}
	if *simulate {
		cfg.Bus.Driver = "virtual"
		cfg.Power.Driver = "virtual"
		cfg.Bus.BringUp = false
	}
	logger := log.StandardLogger()
	logger.SetLevel(cfg.LogLevel)
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	if flag.NArg() == 0 {
		flag.Usage()
		return 2
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		pterm.Error.Printfln("unknown command %q", flag.Arg(0))
		flag.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	a := &app{cfg: cfg, logger: logger, yes: *yes, simulate: *simulate}
	defer a.close()
	if err := cmd(ctx, a, flag.Args()[1:]); err != nil {
		pterm.Error.Println(err)
		return 1
	}
	return 0
}
