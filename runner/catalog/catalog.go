// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package catalog holds reusable step groups for the chess web app and the
// built-in scenarios composed from them.
package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/ttbt-io/uicheck/runner"
)

// Locators shared by several flows.
var (
	Board          = runner.ByCSS("#chessboard-wrapper")
	PlayBotsNav    = runner.ByExactText("Play Bots")
	StartButton    = runner.ByTestID("play-bot-start")
	ResignButton   = runner.ByTitle("Resign")
	CoachToggle    = runner.ByTitle("Toggle Coach Mode")
	HintButton     = runner.ByTitle("Hint")
	TakebackButton = runner.ByTitle("Takeback")
	GameReview     = runner.ByRole("button", "Game Review")
	NextPuzzleBtn  = runner.ByRole("button", "Next Puzzle")
	MobileNav      = runner.ByCSS(".fixed.bottom-0")
	MobileMenu     = runner.ByCSS(".fixed.inset-0.z-50")
	Busy           = runner.ByClass("cursor-wait")
	EngineHeader   = runner.ByText("Stockfish")
	AnalysisDialog = runner.ByText("Analysis Settings")
	SettingsDialog = runner.ByText("Board Theme")
	CoachActive    = runner.ByCSS(`button[title="Toggle Coach Mode"].bg-chess-green`)
	RematchButton  = runner.ByRole("button", "Rematch")
	NewBotButton   = runner.ByRole("button", "New Bot")
	LessonsIntro   = runner.ByText("Master the game with our interactive lessons")
	LessonSolved   = runner.ByText("Excellent!")
	TournamentsH1  = runner.ByCSS("h1").WithText("Tournaments")
	JoinButton     = runner.ByRole("button", "Join Tournament")
	PeerID         = runner.ByCSS("input[readonly]")
)

// hintShownJS holds once the board draws a suggestion arrow.
const hintShownJS = `document.querySelector('svg line[marker-end]') !== null`

const (
	// engineTimeout covers the engine worker start on the analysis view.
	engineTimeout = 10 * time.Second
	// opponentDelay paces the next move while a lesson opponent replies.
	opponentDelay = 2 * time.Second
)

func OpenHome() runner.Step {
	return runner.Open("").Expect(runner.Visible(PlayBotsNav)).Named("open home")
}

// OpenView deep-links to a fragment and waits for ready, if given.
func OpenView(fragment string, ready ...runner.Locator) runner.Step {
	st := runner.Open(fragment).Named("open #" + strings.TrimPrefix(fragment, "#"))
	for _, l := range ready {
		st = st.Expect(runner.Visible(l))
	}
	return st
}

func OpenPlayBots() runner.Step {
	return runner.Click(PlayBotsNav).Expect(runner.Visible(StartButton)).Named("open play bots")
}

func SelectBot(name string) runner.Step {
	return runner.Click(runner.ByExactText(name)).Named("select bot " + name)
}

// PlayAs picks the side in the bot panel, "white" or "black".
func PlayAs(color string) runner.Step {
	c := strings.ToLower(strings.TrimSpace(color))
	if c != "" {
		c = strings.ToUpper(c[:1]) + c[1:]
	}
	return runner.Click(runner.ByTitle("Play as " + c)).Named("play as " + strings.ToLower(c))
}

// StartBotGame opens the bot panel, selects bot unless it is empty, and
// starts a game.
func StartBotGame(bot string) []runner.Step {
	steps := []runner.Step{OpenPlayBots()}
	if bot != "" {
		steps = append(steps, SelectBot(bot))
	}
	return append(steps, startGame())
}

func startGame() runner.Step {
	return runner.Click(StartButton).
		Expect(runner.Visible(Board), runner.Visible(runner.BySquare("e2"))).
		Named("start bot game")
}

// MakeMove drags the piece on from to to.
func MakeMove(from, to string) runner.Step {
	return runner.Drag(runner.BySquare(from), runner.BySquare(to)).
		Expect(runner.Hidden(Busy)).
		Named(fmt.Sprintf("move %s-%s", from, to))
}

// ClickMove plays a move with two clicks, select then target.
func ClickMove(from, to string) []runner.Step {
	return []runner.Step{
		runner.Click(runner.BySquare(from)).Named("select " + from),
		runner.Click(runner.BySquare(to)).Expect(runner.Hidden(Busy)).Named(fmt.Sprintf("move %s-%s", from, to)),
	}
}

func Resign() runner.Step {
	return runner.Click(ResignButton).Expect(runner.Visible(GameReview)).Named("resign")
}

func OpenGameReview() runner.Step {
	return runner.Click(GameReview).
		Expect(runner.Visible(runner.ByCSS("h2").WithText("Game Review"))).
		Named("open game review")
}

// ToggleCoach flips coach mode and waits for the toggle to show the new state.
func ToggleCoach(on bool) runner.Step {
	st := runner.Click(CoachToggle)
	if on {
		return st.Expect(runner.Visible(CoachActive)).Named("coach mode on")
	}
	return st.Expect(runner.Hidden(CoachActive)).Named("coach mode off")
}

// Hint asks the engine for a move and waits for the suggestion arrow.
func Hint() runner.Step {
	return runner.Click(HintButton).Expect(runner.Script(hintShownJS)).Within(engineTimeout).Named("hint")
}

// GameOver waits for the overlay shown when a game ends.
func GameOver() runner.Step {
	return runner.WaitFor(runner.Visible(RematchButton), runner.Visible(NewBotButton)).Named("game over overlay")
}

// Rematch starts a new game against the same bot from the game-over overlay.
func Rematch() runner.Step {
	return runner.Click(RematchButton).
		Expect(runner.Hidden(RematchButton), runner.Visible(runner.BySquare("e2"))).
		Named("rematch")
}

func Takeback() runner.Step {
	return runner.Click(TakebackButton).Expect(runner.Hidden(Busy)).Named("takeback")
}

func OpenPuzzles() runner.Step {
	return runner.Click(runner.ByCSS("button").WithText("Puzzles")).
		Expect(runner.Visible(runner.ByText("to Move"))).
		Named("open puzzles")
}

// SolvePuzzle waits for the puzzle titled title and plays moves, each in
// coordinate form like "h5f7". The last move must reveal the next-puzzle
// button.
func SolvePuzzle(title string, moves ...string) []runner.Step {
	steps := []runner.Step{runner.WaitFor(runner.Visible(runner.ByText(title))).Named("puzzle " + title)}
	steps = append(steps, playMoves(moves)...)
	last := &steps[len(steps)-1]
	*last = last.Expect(runner.Visible(NextPuzzleBtn))
	return steps
}

// playMoves turns coordinate moves into click pairs. A malformed move
// becomes a click without a target, which fails scenario validation.
func playMoves(moves []string) []runner.Step {
	var steps []runner.Step
	for _, m := range moves {
		from, to, err := splitMove(m)
		if err != nil {
			steps = append(steps, runner.Click(runner.Locator{}).Named(err.Error()))
			continue
		}
		steps = append(steps, ClickMove(from, to)...)
	}
	return steps
}

func splitMove(m string) (string, string, error) {
	c := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(m)), "-", "")
	if len(c) != 4 || !isSquare(c[:2]) || !isSquare(c[2:]) {
		return "", "", fmt.Errorf("malformed move %q", m)
	}
	return c[:2], c[2:], nil
}

func isSquare(s string) bool {
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

func NextPuzzle() runner.Step {
	return runner.Click(NextPuzzleBtn).Named("next puzzle")
}

func OpenAnalysis() runner.Step {
	return runner.Open("analysis").Expect(runner.Visible(EngineHeader)).Within(engineTimeout).Named("open analysis")
}

// OpenAnalysisSettings clicks the gear button of the engine panel.
func OpenAnalysisSettings() runner.Step {
	return runner.Click(runner.ByCSS("button:has(svg.lucide-settings)").Last()).
		Expect(runner.Visible(AnalysisDialog)).
		Named("open analysis settings")
}

func OpenMobileMenu() runner.Step {
	return runner.Click(runner.ByCSS(".fixed.bottom-0 button").WithText("More")).
		Expect(runner.Visible(MobileMenu)).
		Named("open mobile menu")
}

func ExpandMobileSection(name string) runner.Step {
	return runner.Click(runner.ByCSS("button").WithText(name).In(MobileMenu)).Named("expand " + name)
}

func OpenSettings() runner.Step {
	return runner.Click(runner.ByExactText("Settings")).Expect(runner.Visible(SettingsDialog)).Named("open settings")
}

// OpenLessons reaches the lessons index through the Learn menu.
func OpenLessons() []runner.Step {
	return []runner.Step{
		runner.Hover(runner.ByExactText("Learn")).Expect(runner.Visible(runner.ByExactText("Lessons"))).Named("hover learn"),
		runner.Click(runner.ByExactText("Lessons")).Expect(runner.Visible(LessonsIntro)).Named("open lessons"),
	}
}

func StartLesson(name string) runner.Step {
	return runner.Click(runner.ByText(name)).
		Expect(runner.Visible(runner.ByText("Challenge 1 of 2"))).
		Named("start lesson " + name)
}

// SolveChallenge plays the moves of a lesson challenge, pacing each move
// after the first while the opponent replies, and waits for the praise.
func SolveChallenge(moves ...string) []runner.Step {
	steps := playMoves(moves)
	for i := 2; i < len(steps); i += 2 {
		steps[i] = steps[i].SettleFor(opponentDelay)
	}
	if len(steps) > 0 {
		last := &steps[len(steps)-1]
		*last = last.Expect(runner.Visible(LessonSolved))
	}
	return steps
}

func OpenTournaments() runner.Step {
	return runner.Open("tournaments").Expect(runner.Visible(TournamentsH1)).Named("open tournaments")
}

// JoinTournament opens the lobby of the named tournament and joins it.
func JoinTournament(name string) []runner.Step {
	return []runner.Step{
		runner.Click(runner.ByExactText(name)).
			Expect(runner.Visible(runner.ByCSS("h1").WithText(name)), runner.Visible(JoinButton)).
			Named("open lobby " + name),
		runner.Click(JoinButton).Expect(runner.Visible(runner.ByText("Starting In"))).Named("join " + name),
	}
}

func BackToTournaments() runner.Step {
	return runner.Click(runner.ByText("Back to Tournaments")).Expect(runner.Visible(TournamentsH1)).Named("back to tournaments")
}

// EditProfile renames the user, optionally picks a flag, saves and returns
// to the dashboard, which must show the new name.
func EditProfile(username, flag string) []runner.Step {
	steps := []runner.Step{
		runner.Click(runner.ByText("Edit Profile")).Expect(runner.Visible(runner.ByText("Save Changes"))).Named("edit profile"),
		runner.Fill(runner.ByPlaceholder("Enter username"), username).Named("enter username"),
	}
	if flag != "" {
		steps = append(steps, runner.Click(runner.ByText(flag)).Named("pick flag "+flag))
	}
	return append(steps,
		runner.Click(runner.ByText("Save Changes")).Expect(runner.PageText("Saved!")).Named("save profile"),
		runner.Click(runner.ByCSS("button:has(svg.lucide-arrow-left)")).
			Expect(runner.Visible(runner.ByText(username))).
			Named("back to dashboard"),
	)
}

// OpenMultiplayer deep-links to the multiplayer view and waits for the
// peer id to be generated.
func OpenMultiplayer() runner.Step {
	return runner.Open("multiplayer").
		Expect(
			runner.Visible(runner.ByRole("heading", "Multiplayer")),
			runner.ValueNot(PeerID, "Generating..."),
			runner.ValueNot(PeerID, ""),
		).
		Within(engineTimeout).
		Named("open multiplayer")
}
