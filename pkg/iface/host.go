package iface

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/vishvananda/netlink"
)

// Host is the privileged OS side of interface management.
// Every step can fail on its own.
type Host interface {
	List() ([]string, error)
	Down(name string) error
	SetType(name string, linkType string, bitrate int) error
	SetTxQueueLen(name string, n int) error
	Up(name string) error
}

// CAN link types reported by the kernel
var canLinkTypes = map[string]bool{
	"can":   true,
	"vcan":  true,
	"vxcan": true,
}

// NetlinkHost drives links through rtnetlink.
// CAN bit timing has no netlink setter in the library, it goes through iproute2.
type NetlinkHost struct {
	// Command used for "ip", can be prefixed (e.g. sudo)
	IpCommand []string
}

func NewNetlinkHost() *NetlinkHost {
	return &NetlinkHost{IpCommand: []string{"ip"}}
}

func (h *NetlinkHost) List() ([]string, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0)
	for _, link := range links {
		if canLinkTypes[link.Type()] {
			names = append(names, link.Attrs().Name)
		}
	}
	return names, nil
}

func (h *NetlinkHost) Down(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return err
	}
	return netlink.LinkSetDown(link)
}

func (h *NetlinkHost) SetType(name string, linkType string, bitrate int) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return err
	}
	if link.Type() == "vcan" {
		// Virtual links have no bit timing
		return nil
	}
	if link.Type() != linkType {
		return fmt.Errorf("%v is a %v link, not %v", name, link.Type(), linkType)
	}
	command := h.bitrateCommand(name, linkType, bitrate)
	out, err := exec.Command(command[0], command[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%v : %w (%v)", strings.Join(command, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Full iproute2 command line setting the bitrate, plain "ip" when no
// command is configured
func (h *NetlinkHost) bitrateCommand(name string, linkType string, bitrate int) []string {
	command := []string{"ip"}
	if len(h.IpCommand) > 0 {
		command = append([]string{}, h.IpCommand...)
	}
	return append(command, "link", "set", name, "type", linkType, "bitrate", strconv.Itoa(bitrate))
}

func (h *NetlinkHost) SetTxQueueLen(name string, n int) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return err
	}
	return netlink.LinkSetTxQLen(link, n)
}

func (h *NetlinkHost) Up(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return err
	}
	return netlink.LinkSetUp(link)
}
