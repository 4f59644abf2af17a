package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/doctainr/doctainr/internal/docker"
)

var (
	purple = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")
)

var (
	SuccessStyle = lipgloss.NewStyle().Foreground(green)
	ErrorStyle   = lipgloss.NewStyle().Foreground(red)
	MutedStyle   = lipgloss.NewStyle().Foreground(dim)
)

func SuccessMsg(format string, a ...any) string {
	return SuccessStyle.Render("✓") + " " + fmt.Sprintf(format, a...)
}

func ErrorMsg(format string, a ...any) string {
	return ErrorStyle.Render("✗") + " " + fmt.Sprintf(format, a...)
}

func stateLabel(s docker.State) string {
	if s == docker.Running {
		return SuccessStyle.Render("running")
	}
	return MutedStyle.Render("stopped")
}

func ContainerTable(list []docker.ContainerRecord) string {
	rows := make([][]string, 0, len(list))
	for _, c := range list {
		rows = append(rows, []string{c.ID, c.Name, c.Image, stateLabel(c.State), c.Status, c.Ports})
	}
	return Table([]string{"ID", "NAME", "IMAGE", "STATE", "STATUS", "PORTS"}, rows)
}

func ImageTable(list []docker.ImageRecord) string {
	rows := make([][]string, 0, len(list))
	for _, img := range list {
		rows = append(rows, []string{img.Repository, img.Tag, shortImageID(img.ID), img.Size})
	}
	return Table([]string{"REPOSITORY", "TAG", "ID", "SIZE"}, rows)
}

func VolumeTable(list []docker.VolumeRecord) string {
	rows := make([][]string, 0, len(list))
	for _, v := range list {
		rows = append(rows, []string{v.Name, v.Driver, v.Mountpoint})
	}
	return Table([]string{"NAME", "DRIVER", "MOUNTPOINT"}, rows)
}

// shortImageID renders "sha256:0123..." the way `docker images` does.
func shortImageID(id string) string {
	const prefix = "sha256:"
	if len(id) > len(prefix) && id[:len(prefix)] == prefix {
		id = id[len(prefix):]
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

// Table renders a styled table with rounded borders.
func Table(headers []string, rows [][]string) string {
	headerStyle := lipgloss.NewStyle().
		Foreground(purple).
		Bold(true).
		Padding(0, 1)

	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	oddStyle := cellStyle.Foreground(dim)
	evenStyle := cellStyle

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(faint)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row%2 == 0:
				return evenStyle
			default:
				return oddStyle
			}
		}).
		Headers(headers...).
		Rows(rows...)

	return t.String()
}
