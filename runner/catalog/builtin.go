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

package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ttbt-io/uicheck/runner"
)

var builtins = []func() runner.Scenario{
	botGame,
	fullFlow,
	gameReview,
	puzzles,
	analysisSettings,
	mobileMenu,
	coachMode,
	hintUndo,
	blackBot,
	consoleClean,
	settings,
	lessons,
	tournaments,
	profileEdit,
	multiplayer,
	gameOver,
}

func botGame() runner.Scenario {
	return runner.Scenario{
		Name:        "bot-game",
		Description: "Start a game against Martin, play e4 and resign.",
		Tags:        []string{"smoke", "play"},
		Steps: runner.Flatten(
			OpenHome(),
			StartBotGame("Martin"),
			MakeMove("e2", "e4"),
			Resign(),
		),
	}
}

func fullFlow() runner.Scenario {
	return runner.Scenario{
		Name:        "full-flow",
		Description: "Bot game with coach mode, then review the moves in analysis.",
		Tags:        []string{"play", "review"},
		Steps: runner.Flatten(
			OpenHome(),
			StartBotGame("Martin"),
			MakeMove("e2", "e4"),
			ToggleCoach(true),
			MakeMove("d2", "d4"),
			Resign(),
			OpenGameReview(),
			runner.Click(runner.ByExactText("Analysis")).
				Expect(runner.Visible(runner.ByCSS("button").WithText("e4"))).
				Named("open analysis tab"),
			runner.Screenshot("full-flow-analysis"),
		),
	}
}

func gameReview() runner.Scenario {
	return runner.Scenario{
		Name:        "game-review",
		Description: "Resign a fresh bot game and open the review panel.",
		Tags:        []string{"review"},
		Steps: runner.Flatten(
			OpenHome(),
			StartBotGame(""),
			Resign(),
			OpenGameReview(),
			runner.Screenshot("game-review"),
		),
	}
}

func puzzles() runner.Scenario {
	return runner.Scenario{
		Name:        "puzzles",
		Description: "Solve the first two puzzles of the set.",
		Tags:        []string{"puzzles"},
		Steps: runner.Flatten(
			OpenHome(),
			OpenPuzzles(),
			SolvePuzzle("Mate in 1", "h5f7"),
			NextPuzzle(),
			SolvePuzzle("Back Rank Mate", "e1e8"),
		),
	}
}

func analysisSettings() runner.Scenario {
	return runner.Scenario{
		Name:        "analysis-settings",
		Description: "Change engine depth in the analysis settings modal and save.",
		Tags:        []string{"analysis"},
		Steps: runner.Flatten(
			OpenAnalysis(),
			OpenAnalysisSettings(),
			runner.Fill(runner.ByCSS("input[type=range]"), "5").Named("set depth"),
			runner.Click(runner.ByText("Save Changes")).
				Expect(runner.Hidden(AnalysisDialog)).
				Named("save settings"),
		),
	}
}

func mobileMenu() runner.Scenario {
	return runner.Scenario{
		Name:        "mobile-menu",
		Description: "Open the bottom navigation menu on a phone and expand Learn.",
		Tags:        []string{"mobile", "smoke"},
		Device:      "iphone-12",
		Steps: runner.Flatten(
			runner.Open("").Expect(runner.Visible(MobileNav)).Within(engineTimeout).Named("open home"),
			OpenMobileMenu(),
			runner.Screenshot("mobile-menu-open"),
			ExpandMobileSection("Learn").Expect(runner.Visible(runner.ByText("Lessons"))),
			runner.Screenshot("mobile-menu-learn"),
		),
	}
}

func coachMode() runner.Scenario {
	return runner.Scenario{
		Name:        "coach-mode",
		Description: "Start a coach game from its deep link and play one move.",
		Tags:        []string{"play", "coach"},
		Steps: runner.Flatten(
			OpenView("/play/coach", runner.ByText("Play Coach")).Within(engineTimeout),
			runner.Click(runner.ByCSS("button").WithText("Play")).
				Expect(runner.Visible(Board)).
				Named("start coach game"),
			ClickMove("e2", "e4"),
		),
	}
}

func hintUndo() runner.Scenario {
	return runner.Scenario{
		Name:        "hint-undo",
		Description: "Ask for a hint, play a move and take it back.",
		Tags:        []string{"play"},
		Steps: runner.Flatten(
			OpenHome(),
			StartBotGame(""),
			Hint(),
			ClickMove("e2", "e4"),
			Takeback(),
			runner.Screenshot("takeback"),
		),
	}
}

func blackBot() runner.Scenario {
	return runner.Scenario{
		Name:        "black-bot",
		Description: "Start a bot game playing the black pieces.",
		Tags:        []string{"play"},
		Steps: runner.Flatten(
			OpenHome(),
			OpenPlayBots(),
			PlayAs("black"),
			startGame(),
			runner.Screenshot("black-bot"),
		),
	}
}

// consoleClean is meant to be run with FailOnConsoleError.
func consoleClean() runner.Scenario {
	return runner.Scenario{
		Name:        "console-clean",
		Description: "Walk through play and review; any console error fails the run when console errors are fatal.",
		Tags:        []string{"console"},
		Steps: runner.Flatten(
			OpenHome(),
			StartBotGame(""),
			Resign(),
			OpenGameReview(),
			runner.WaitFor(runner.Hidden(Busy)).Named("review settled"),
		),
	}
}

func settings() runner.Scenario {
	return runner.Scenario{
		Name:        "settings",
		Description: "Pick the brown board theme in the settings modal.",
		Tags:        []string{"settings"},
		Steps: runner.Flatten(
			OpenHome(),
			OpenSettings(),
			runner.Click(runner.ByExactText("Brown")).Named("select brown theme"),
			runner.Click(runner.ByCSS("button").WithText("Save")).
				Expect(runner.Hidden(SettingsDialog)).
				Named("save settings"),
		),
	}
}

func lessons() runner.Scenario {
	return runner.Scenario{
		Name:        "lessons",
		Description: "Open Basic Tactics from the Learn menu and solve the first challenge.",
		Tags:        []string{"learn"},
		Steps: runner.Flatten(
			OpenHome(),
			OpenLessons(),
			StartLesson("Basic Tactics"),
			SolveChallenge("e5f7", "f7d8"),
			runner.Click(runner.ByText("Next Challenge")).
				Expect(runner.Visible(runner.ByText("Challenge 2 of 2"))).
				Named("next challenge"),
		),
	}
}

func tournaments() runner.Scenario {
	return runner.Scenario{
		Name:        "tournaments",
		Description: "Join the hourly bullet arena and go back to the list.",
		Tags:        []string{"tournaments"},
		Steps: runner.Flatten(
			OpenTournaments(),
			JoinTournament("Hourly Bullet Arena"),
			BackToTournaments(),
		),
	}
}

func profileEdit() runner.Scenario {
	return runner.Scenario{
		Name:        "profile-edit",
		Description: "Rename the player, pick a flag and check the dashboard shows the new name.",
		Tags:        []string{"profile"},
		Steps: runner.Flatten(
			OpenHome(),
			EditProfile("GrandmasterBot", "🇬🇧"),
		),
	}
}

func multiplayer() runner.Scenario {
	return runner.Scenario{
		Name:        "multiplayer",
		Description: "Open the multiplayer view and wait for a peer id.",
		Tags:        []string{"multiplayer"},
		Steps: runner.Flatten(
			OpenMultiplayer(),
			runner.Screenshot("multiplayer"),
		),
	}
}

func gameOver() runner.Scenario {
	return runner.Scenario{
		Name:        "game-over",
		Description: "Resign a bot game, check the game-over overlay and start a rematch.",
		Tags:        []string{"play"},
		Steps: runner.Flatten(
			OpenHome(),
			StartBotGame(""),
			Resign(),
			GameOver(),
			Rematch(),
		),
	}
}

// Builtin returns fresh copies of all built-in scenarios.
func Builtin() []runner.Scenario {
	out := make([]runner.Scenario, 0, len(builtins))
	for _, f := range builtins {
		out = append(out, f())
	}
	return out
}

// Names returns the built-in scenario names, sorted.
func Names() []string {
	var names []string
	for _, sc := range Builtin() {
		names = append(names, sc.Name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the named built-in scenarios in the given order. A name of
// the form "tag:x" selects every scenario tagged x. No names selects all.
func Lookup(names ...string) ([]runner.Scenario, error) {
	all := Builtin()
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]runner.Scenario, len(all))
	for _, sc := range all {
		byName[sc.Name] = sc
	}
	var out []runner.Scenario
	seen := make(map[string]bool)
	add := func(sc runner.Scenario) {
		if !seen[sc.Name] {
			seen[sc.Name] = true
			out = append(out, sc)
		}
	}
	for _, n := range names {
		if tag, ok := strings.CutPrefix(n, "tag:"); ok {
			found := false
			for _, sc := range all {
				if sc.HasTag(tag) {
					add(sc)
					found = true
				}
			}
			if !found {
				return nil, fmt.Errorf("no built-in scenario tagged %q", tag)
			}
			continue
		}
		sc, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q (known: %s)", n, strings.Join(Names(), ", "))
		}
		add(sc)
	}
	return out, nil
}
