package queue

import "github.com/redis/go-redis/v9"

// promoteScript moves due delayed jobs onto the wait list.
//
// KEYS[1] delayed zset, KEYS[2] wait list
// ARGV[1] now (unix ms), ARGV[2] batch size
var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('LPUSH', KEYS[2], id)
end
return #ids
`)

// reclaimScript returns active jobs whose lease expired to the head of the
// wait list. Active jobs without a lease get one, covering a worker that died
// between reserving and leasing. Jobs that stall more than ARGV[3] times are
// dead-lettered.
//
// KEYS[1] active list, KEYS[2] lease zset, KEYS[3] wait list, KEYS[4] dead list
// ARGV[1] now (unix ms), ARGV[2] lease (ms), ARGV[3] max stalls, ARGV[4] job key prefix
var reclaimScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local lease = tonumber(ARGV[2])
local maxStalls = tonumber(ARGV[3])
local ids = redis.call('LRANGE', KEYS[1], 0, -1)
local requeued = 0
local dead = 0
for _, id in ipairs(ids) do
  local deadline = redis.call('ZSCORE', KEYS[2], id)
  if not deadline then
    redis.call('ZADD', KEYS[2], now + lease, id)
  elseif tonumber(deadline) <= now then
    local jobKey = ARGV[4] .. id
    redis.call('LREM', KEYS[1], 1, id)
    redis.call('ZREM', KEYS[2], id)
    local stalls = redis.call('HINCRBY', jobKey, 'stalledCount', 1)
    if stalls > maxStalls then
      redis.call('HSET', jobKey, 'failedReason', 'job stalled more than allowable limit', 'finishedOn', now)
      redis.call('LPUSH', KEYS[4], id)
      dead = dead + 1
    else
      redis.call('RPUSH', KEYS[3], id)
      requeued = requeued + 1
    end
  end
end
return {requeued, dead}
`)
