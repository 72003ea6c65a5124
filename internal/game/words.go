/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import "strings"

// UnknownWord is shown to the Dragon in place of a secret word.
const UnknownWord = "???"

var defaultWordPairs = []WordPair{
	{Villager: "Castle", Knight: "Fortress"},
	{Villager: "Sword", Knight: "Dagger"},
	{Villager: "Ocean", Knight: "Lake"},
	{Villager: "Coffee", Knight: "Tea"},
	{Villager: "Guitar", Knight: "Violin"},
	{Villager: "Mountain", Knight: "Hill"},
	{Villager: "Pizza", Knight: "Pie"},
	{Villager: "Train", Knight: "Tram"},
	{Villager: "Doctor", Knight: "Nurse"},
	{Villager: "Winter", Knight: "Autumn"},
	{Villager: "Library", Knight: "Bookstore"},
	{Villager: "Moon", Knight: "Sun"},
	{Villager: "Honey", Knight: "Syrup"},
	{Villager: "Candle", Knight: "Lantern"},
	{Villager: "Wolf", Knight: "Fox"},
	{Villager: "Crown", Knight: "Tiara"},
	{Villager: "Bridge", Knight: "Tunnel"},
	{Villager: "Piano", Knight: "Organ"},
	{Villager: "Forest", Knight: "Jungle"},
	{Villager: "Cheese", Knight: "Butter"},
}

// DefaultWordPairs returns a copy of the built-in word list.
func DefaultWordPairs() []WordPair {
	pairs := make([]WordPair, len(defaultWordPairs))
	copy(pairs, defaultWordPairs)

	return pairs
}

// GuessMatches reports whether the Dragon's guess names the villager word.
// Comparison ignores case and surrounding whitespace.
func GuessMatches(guess, villagerWord string) bool {
	guess = strings.TrimSpace(guess)

	return guess != "" && strings.EqualFold(guess, strings.TrimSpace(villagerWord))
}
