// razerctl is the control CLI for razerkbd.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"razerkbd/internal/dbusapi"
)

var (
	serialFlag  = flag.String("device", "", "device serial (default: first device)")
	serviceFlag = flag.String("service", dbusapi.ServiceName, "D-Bus service name")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	if flag.Arg(0) == "help" {
		usage()
		return
	}

	if err := run(flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`razerctl - control a running razerkbd

USAGE:
    razerctl [-device serial] <command> [args]

COMMANDS:
    devices                                 List device serials
    version                                 Print the daemon version
    profiles                                List profiles
    add-profile <name>                      Create a profile
    remove-profile <name>                   Delete a profile
    use-profile <name>                      Activate a profile
    maps <profile>                          List maps of a profile
    add-map <profile> <name>                Create a map
    use-map <name>                          Activate a map of the active profile
    actions <profile> <map> <key>           Show actions bound to a key code
    add-action <profile> <map> <key> <type> <value>
    clear-actions <profile> <map> <key>     Remove every action from a key
    export <profile> [file]                 Write a profile document
    import <file>                           Read a profile document
    game-mode [on|off]                      Show or set game mode
    brightness [0-100]                      Show or set brightness
    ripple on|off                           Toggle the ripple effect
    keys                                    Show the ripple key buffer`)
}

func need(args []string, n int, form string) error {
	if len(args) < n {
		return fmt.Errorf("usage: razerctl %s", form)
	}
	return nil
}

func parseKey(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid key code %q", s)
	}
	return uint16(v), nil
}

func run(cmd string, args []string) error {
	client, err := dbusapi.NewClient(*serviceFlag)
	if err != nil {
		return err
	}

	switch cmd {
	case "devices":
		serials, err := client.Devices()
		if err != nil {
			return err
		}
		for _, s := range serials {
			fmt.Println(s)
		}
		return nil
	case "version":
		v, err := client.Version()
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	}

	dev, err := selectDevice(client)
	if err != nil {
		return err
	}

	switch cmd {
	case "profiles":
		active, err := dev.ActiveProfile()
		if err != nil {
			return err
		}
		names, err := dev.Profiles()
		if err != nil {
			return err
		}
		for _, n := range names {
			marker := " "
			if n == active {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, n)
		}
	case "add-profile":
		if err := need(args, 1, "add-profile <name>"); err != nil {
			return err
		}
		return dev.AddProfile(args[0])
	case "remove-profile":
		if err := need(args, 1, "remove-profile <name>"); err != nil {
			return err
		}
		return dev.RemoveProfile(args[0])
	case "use-profile":
		if err := need(args, 1, "use-profile <name>"); err != nil {
			return err
		}
		return dev.SetActiveProfile(args[0])
	case "maps":
		if err := need(args, 1, "maps <profile>"); err != nil {
			return err
		}
		names, err := dev.Maps(args[0])
		if err != nil {
			return err
		}
		fmt.Println(strings.Join(names, "\n"))
	case "add-map":
		if err := need(args, 2, "add-map <profile> <name>"); err != nil {
			return err
		}
		return dev.AddMap(args[0], args[1])
	case "use-map":
		if err := need(args, 1, "use-map <name>"); err != nil {
			return err
		}
		return dev.SetActiveMap(args[0])
	case "actions":
		if err := need(args, 3, "actions <profile> <map> <key>"); err != nil {
			return err
		}
		key, err := parseKey(args[2])
		if err != nil {
			return err
		}
		raw, err := dev.Actions(args[0], args[1], key)
		if err != nil {
			return err
		}
		fmt.Println(raw)
	case "add-action":
		if err := need(args, 5, "add-action <profile> <map> <key> <type> <value>"); err != nil {
			return err
		}
		key, err := parseKey(args[2])
		if err != nil {
			return err
		}
		return dev.AddAction(args[0], args[1], key, args[3], args[4])
	case "clear-actions":
		if err := need(args, 3, "clear-actions <profile> <map> <key>"); err != nil {
			return err
		}
		key, err := parseKey(args[2])
		if err != nil {
			return err
		}
		return dev.ClearActions(args[0], args[1], key)
	case "export":
		if err := need(args, 1, "export <profile> [file]"); err != nil {
			return err
		}
		doc, err := dev.ExportProfile(args[0])
		if err != nil {
			return err
		}
		if len(args) > 1 {
			return os.WriteFile(args[1], []byte(doc), 0644)
		}
		fmt.Println(doc)
	case "import":
		if err := need(args, 1, "import <file>"); err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		name, err := dev.ImportProfile(string(data))
		if err != nil {
			return err
		}
		fmt.Printf("Imported profile %q\n", name)
	case "game-mode":
		if len(args) == 0 {
			on, err := dev.GameMode()
			if err != nil {
				return err
			}
			fmt.Println(onOff(on))
			return nil
		}
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return dev.SetGameMode(on)
	case "brightness":
		if len(args) == 0 {
			level, err := dev.Brightness()
			if err != nil {
				return err
			}
			fmt.Printf("%.0f\n", level)
			return nil
		}
		level, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid brightness %q", args[0])
		}
		return dev.SetBrightness(level)
	case "ripple":
		if err := need(args, 1, "ripple on|off"); err != nil {
			return err
		}
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		if on {
			return dev.SetRipple(0, 255, 0, 0.05)
		}
		return dev.SetNone()
	case "keys":
		symbols, err := dev.KeyBuffer()
		if err != nil {
			return err
		}
		fmt.Println(strings.Join(symbols, " "))
	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
	return nil
}

func selectDevice(client *dbusapi.Client) (*dbusapi.DeviceClient, error) {
	if *serialFlag != "" {
		return client.Device(*serialFlag), nil
	}
	serials, err := client.Devices()
	if err != nil {
		return nil, err
	}
	if len(serials) == 0 {
		return nil, fmt.Errorf("razerkbd reports no devices")
	}
	return client.Device(serials[0]), nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
