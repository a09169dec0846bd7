package main

import (
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/youufis/SmartKB/internal/identity"
	"github.com/youufis/SmartKB/internal/retrieval"
	"github.com/youufis/SmartKB/internal/tasks"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)

	statusActive   = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Padding(0, 1)
	statusInactive = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Padding(0, 1)

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(headers...)
}

func renderTitle(w io.Writer, title string) {
	_, _ = io.WriteString(w, titleStyle.Render(title)+"\n")
}

func renderTasks(w io.Writer, title string, list []tasks.Task) {
	renderTitle(w, title)
	if len(list) == 0 {
		_, _ = io.WriteString(w, helpStyle.Render("no tasks")+"\n")
		return
	}
	t := newTable("ID", "CREATOR", "NAME", "STATUS", "CREATED", "SUBMISSIONS")
	for _, task := range list {
		t.Row(task.ID, task.Creator, task.Name, string(task.Status),
			task.CreatedTime.Format("2006-01-02 15:04"), strconv.Itoa(len(task.Submissions)))
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case col == 3 && list[row].IsActive():
			return statusActive
		case col == 3:
			return statusInactive
		}
		return cellStyle
	})
	_, _ = io.WriteString(w, t.Render()+"\n")
}

func renderUsers(w io.Writer, users []identity.User) {
	renderTitle(w, "Users")
	t := newTable("USERNAME", "NAME", "CLASS", "GENDER", "ROLE")
	for _, u := range users {
		t.Row(u.Username, u.Name, u.Class, u.Gender, u.Role.String())
	}
	t.StyleFunc(func(row, _ int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		return cellStyle
	})
	_, _ = io.WriteString(w, t.Render()+"\n")
}

func renderIndexResults(w io.Writer, results []retrieval.IndexResult) {
	renderTitle(w, "Ingested")
	t := newTable("SOURCE", "CHUNKS", "REPLACED")
	total := 0
	for _, r := range results {
		t.Row(r.Source, strconv.Itoa(r.Chunks), strconv.Itoa(r.Replaced))
		total += r.Chunks
	}
	t.StyleFunc(func(row, _ int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		return cellStyle
	})
	_, _ = io.WriteString(w, t.Render()+"\n")
	_, _ = io.WriteString(w, helpStyle.Render(strings.Join([]string{
		strconv.Itoa(len(results)), "files,", strconv.Itoa(total), "chunks",
	}, " "))+"\n")
}
