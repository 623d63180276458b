package session

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"library-catalog/library"
)

var (
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

// bookStatus is the Status column text for a book.
func bookStatus(b *library.Book) string {
	if b.CheckedOut {
		return "Checked Out by: " + b.Borrower
	}
	return "Available"
}

// BookTable renders books as a bordered table.
func BookTable(books []*library.Book) string {
	rows := make([][]string, 0, len(books))
	for _, b := range books {
		rows = append(rows, []string{b.ISBN, b.Title, b.Author, bookStatus(b)})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("ISBN", "Title", "Author", "Status").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 3 && row >= 0 && row < len(books) {
				if books[row].CheckedOut {
					return cellStyle.Foreground(lipgloss.Color("9"))
				}
				return cellStyle.Bold(true).Foreground(lipgloss.Color("10"))
			}
			return cellStyle
		})
	return t.String()
}

// UserTable renders users as a bordered table. Passwords are never shown.
func UserTable(users []*library.User) string {
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{u.Username, u.Role.String()})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("Username", "Role").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 1 && row >= 0 && row < len(users) && users[row].Role == library.Librarian {
				return cellStyle.Bold(true).Foreground(lipgloss.Color("13"))
			}
			return cellStyle
		})
	return t.String()
}

// pageBounds returns the [start, end) slice bounds of page (1-based) and the
// total number of pages.
func pageBounds(total, size, page int) (start, end, pages int) {
	pages = (total + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	page = min(max(page, 1), pages)
	start = (page - 1) * size
	end = min(start+size, total)
	return start, end, pages
}

func pageFooter(page, pages int) string {
	return fmt.Sprintf("Page %d of %d\n[N]ext Page | [P]revious Page | [Q]uit to Menu", page, pages)
}
