package session

import "github.com/glintworks/murmur/internal/discord"

// Stop reasons recorded in the action log and surfaced to operators.
const (
	StopReasonManualLeave       = "manual_leave"
	StopReasonAllLeft           = "all_participants_left"
	StopReasonInactivity        = "inactivity"
	StopReasonMaxDuration       = "max_session_duration"
	StopReasonSocketClosed      = "realtime_socket_closed"
	StopReasonTranscriberError  = "transcriber_error"
	StopReasonChannelBlocked    = "settings_channel_blocked"
	StopReasonChannelNotAllowed = "settings_channel_not_allowlisted"
	StopReasonShutdown          = "shutdown"
)

// reasonNotActive is returned for operations against a room with no session.
const reasonNotActive = "not active"

const (
	CommandVoiceJoin  = "voice-join"
	CommandVoiceLeave = "voice-leave"
	CommandWatch      = "watch"
	CommandWatchStop  = "watch-stop"
)

func SlashCommandDefinitions() []discord.SlashCommandDefinition {
	return []discord.SlashCommandDefinition{
		{Name: CommandVoiceJoin, Description: "Have the agent join your current voice channel"},
		{Name: CommandVoiceLeave, Description: "Have the agent leave the voice channel"},
		{Name: CommandWatch, Description: "Have the agent watch a participant's screen share"},
		{Name: CommandWatchStop, Description: "Stop watching the screen share"},
	}
}

const (
	msgJoined             = "ボイスチャンネルに参加しました。呼びかけてもらえれば応答します。"
	msgLeft               = "ボイスチャンネルから退出しました。"
	msgNotInVoice         = "先にボイスチャンネルへ参加してください。"
	msgNoActiveSession    = "このサーバーで進行中のセッションはありません。"
	msgAlreadyActive      = "すでにボイスチャンネルに参加しています。"
	msgChannelNotAllowed  = "このチャンネルでは利用が許可されていません。"
	msgWatchStarted       = "画面共有のウォッチを開始しました。"
	msgWatchStopped       = "画面共有のウォッチを終了しました。"
	msgWatchNotWatching   = "現在ウォッチ中の画面共有はありません。"
	msgWatchDisabled      = "画面共有ウォッチは設定で無効になっています。"
	msgWatchTargetMissing = "ウォッチ対象のユーザーを指定してください。"
	msgInternalError      = "内部エラーが発生しました。時間をおいて再度お試しください。"
)
