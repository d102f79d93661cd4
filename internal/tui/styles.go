// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	systemStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("8"))

	contentStyle = lipgloss.NewStyle().PaddingLeft(2)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	stepDoneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	stepRunningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	stepPendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	thoughtStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("13"))
	usageStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	keyStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
